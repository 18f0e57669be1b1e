// Package insight implements the demo analysis stage wrapped by the
// dispatch pipeline: a deterministic alignment step over an opaque
// payload and a hash-based synthesis of the result.
package insight

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

// Prediction is the outcome of aligning an opaque payload.
type Prediction struct {
	TemporalStability float64        `json:"temporal_stability"`
	RecommendedPaths  []Path         `json:"recommended_paths"`
	Metadata          map[string]any `json:"processing_metadata"`
}

// Path is one recommended processing path with a confidence score.
type Path struct {
	PathID     string  `json:"path_id"`
	Confidence float64 `json:"confidence"`
}

// Predict derives a stability score and path recommendations from the
// payload bytes. The score is a deterministic function of the input so
// identical payloads always produce identical predictions.
func Predict(payload []byte) *Prediction {
	var score float64
	if len(payload) > 0 {
		sum := sha256.Sum256(payload)
		// Map the first 8 digest bytes onto [-1, 1).
		raw := binary.BigEndian.Uint64(sum[:8])
		score = float64(int64(raw)) / float64(1<<63)
	}

	return &Prediction{
		TemporalStability: score,
		RecommendedPaths: []Path{
			{PathID: "prime_timeline", Confidence: 0.95},
			{PathID: "alternate_1985", Confidence: 0.72},
		},
		Metadata: map[string]any{
			"model_version": "temporal_v1.2",
		},
	}
}

// NewSeed draws 16 bytes from the secure random source and returns them
// hex encoded.
func NewSeed() (string, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate seed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Synthesize combines a prediction with a stochastic seed into a unique
// insight string: the SHA-256 digest of "<prediction>-<seed>".
func Synthesize(prediction *Prediction, seed string) string {
	combined := fmt.Sprintf("%v-%s", prediction, seed)
	sum := sha256.Sum256([]byte(combined))
	return "Actionable Insight: " + hex.EncodeToString(sum[:])
}
