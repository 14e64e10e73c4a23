// Package docid provides type-safe document identification for pawls.
//
// Every ingested document is keyed by a DocumentID. An ID is one of two
// variants:
//
//  1. ContentDigest: the lowercase hex SHA-256 of the document bytes. Two
//     byte-identical documents always share the same digest, which is what
//     makes ingestion deduplicating.
//
//  2. ExplicitName: a caller-chosen name used when hashing is switched off
//     (the "no hash" ingestion mode). The caller is responsible for
//     uniqueness.
//
// Both variants serialize to their bare value, which is also the name of the
// document's directory on disk, so existing data directories can be read
// back with Parse.
//
// # Usage Examples
//
//	f, _ := os.Open("paper.pdf")
//	id, err := docid.Digest(f)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(id.Kind(), id) // "sha256 9f86d0..."
//
//	named, err := docid.ExplicitName("paper")
package docid
