package domain

import "context"

// ClassifierPort scores an image against a candidate label vocabulary.
// Implementations call an external zero-shot classification capability and
// must respect ctx cancellation
type ClassifierPort interface {
	Classify(ctx context.Context, image []byte, labels []string) ([]Score, error)
}

// DetectorPort runs a named policy over normalized image bytes.
// It never fails: classifier errors degrade to a negative, empty Result
type DetectorPort interface {
	Detect(ctx context.Context, policy string, image []byte, fingerprint string) Result
}
