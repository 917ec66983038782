// Package s3 implements blobstore.Store on Amazon S3, plus a Publisher that
// pairs S3 uploads with DynamoDB commit markers.
//
// S3 alone cannot express "this run either published completely or not at
// all": a reader listing the bucket mid-upload can observe a result set that
// a failed run never finished. The Publisher closes that gap by uploading
// the blob first and then recording a conditional DynamoDB item pointing at
// it; consumers resolve the latest committed blob through the marker table
// and never see uncommitted uploads.
//
// Create the marker table with:
//
//	aws dynamodb create-table \
//	  --table-name minrec-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package s3
