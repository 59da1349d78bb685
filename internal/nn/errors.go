package nn

import "errors"

// Construction errors. Each is returned wrapped with the offending values;
// test with errors.Is.
var (
	// ErrHeadsNotDivisible means the embedding width cannot be split into
	// equal attention heads.
	ErrHeadsNotDivisible = errors.New("embed dim not divisible by number of heads")

	// ErrInvalidPatchSize means the image side is not a multiple of the
	// patch size, or a size is non-positive.
	ErrInvalidPatchSize = errors.New("invalid image or patch size")

	// ErrPositionalMismatch means the positional table length does not equal
	// the number of patches plus the class token.
	ErrPositionalMismatch = errors.New("positional table length mismatch")

	// ErrInvalidConfig covers any other out-of-range hyperparameter.
	ErrInvalidConfig = errors.New("invalid model config")

	// ErrStateDict means a checkpoint's tensors do not fit the model.
	ErrStateDict = errors.New("state dict mismatch")
)
