// Package dataset reads tagged corpora and turns them into padded batches
// for the tagger.
//
// Input is CoNLL-style text: one token per line with the token in the
// first column and its tag in the last, sentences separated by blank lines.
// "-DOCSTART-" lines are skipped.
//
//	EU B-ORG
//	rejects O
//	German B-MISC
//
//	Peter B-PER
//
// Example:
//
//	train, err := dataset.ReadFile("train.txt")
//	words := dataset.NewWordVocab(train, 1)
//	tags := dataset.NewTagVocab(train)
//	examples, err := dataset.Encode(train, words, tags)
//	for _, b := range dataset.Batches(examples, 32, rng) {
//	    ...
//	}
package dataset
