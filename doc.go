// Package minrec computes, for every item in a large interaction log, a
// ranked list of the most similar other items, where similarity is an
// approximation of the Jaccard index between the sets of users who
// interacted with each item.
//
// The approach follows Das et al., "Google News Personalization: Scalable
// Online Collaborative Filtering" (WWW 2007): per round, every item gets a
// MinHash digest of its user set, items are sorted by digest with a random
// tiebreak, and adjacent pairs are scored by exact Jaccard similarity into
// a bounded top-K table. Multiple independent rounds recover the recall a
// single linear pass gives up.
//
// A run scales to millions of interaction records on a single machine by
// spilling every intermediate sequence to compressed disk-backed stashes
// and sorting externally; peak memory is bounded by the run buffer, the
// per-item user sets, and the flat top-K arrays.
//
// # Quick Start
//
//	pipe, err := minrec.New(
//	    minrec.WithRounds(16),
//	    minrec.WithTopK(10),
//	    minrec.WithMaxInteractionsPerUser(500),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	src := ingest.NewJSONLSource(logFile)
//	results, err := pipe.Run(ctx, src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer results.Close()
//
//	it, _ := results.Iter()
//	for it.Next() {
//	    rec := it.Recommendation()
//	    fmt.Println(rec.Item, rec.Candidates)
//	}
//
// Results live in the run's temporary directory; use Results.Export,
// Results.Persist, or the blobstore/s3 Publisher to keep them beyond
// Results.Close.
package minrec
