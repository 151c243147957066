package perception

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Keypoint is one body or face landmark in image pixel coordinates
type Keypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// FaceBox is a detected face bounding box
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Score  float64 `json:"score"`
}

// Gaze is a coarse head-yaw proxy derived from nose and eye positions
type Gaze struct {
	Available bool    `json:"available"`
	Yaw       float64 `json:"yaw"`
	OffScreen bool    `json:"off_screen"`
}

// Snapshot is the perception result for one tick
type Snapshot struct {
	Keypoints  []Keypoint `json:"keypoints"`
	Faces      []FaceBox  `json:"faces"`
	CapturedAt time.Time  `json:"captured_at"`
	Gaze       Gaze       `json:"gaze"`
}

// Empty reports whether nothing was detected
func (s Snapshot) Empty() bool {
	return len(s.Keypoints) == 0 && len(s.Faces) == 0
}

// Summary renders a one-line description for the judgment prompt
func (s Snapshot) Summary() string {
	if s.Empty() {
		return ""
	}

	parts := []string{fmt.Sprintf("faces=%d", len(s.Faces))}
	if n := s.confidentKeypoints(); n > 0 {
		parts = append(parts, fmt.Sprintf("keypoints=%d", n))
	}
	if s.Gaze.Available {
		dir := "center"
		if s.Gaze.OffScreen {
			dir = "left"
			if s.Gaze.Yaw > 0 {
				dir = "right"
			}
		}
		parts = append(parts, fmt.Sprintf("gaze=%s yaw=%.2f", dir, s.Gaze.Yaw))
	}
	return strings.Join(parts, " ")
}

func (s Snapshot) confidentKeypoints() int {
	n := 0
	for _, kp := range s.Keypoints {
		if kp.Score >= MinKeypointScore {
			n++
		}
	}
	return n
}

const (
	// MinKeypointScore is the confidence below which a keypoint is ignored
	MinKeypointScore = 0.3

	// OffScreenYaw is the normalised nose offset treated as looking away
	OffScreenYaw = 0.35
)

// EstimateGaze derives the yaw proxy from nose and eye keypoints. The yaw is
// the horizontal nose offset from the eye midpoint divided by eye distance.
func EstimateGaze(keypoints []Keypoint) Gaze {
	var nose, left, right *Keypoint
	for i := range keypoints {
		kp := &keypoints[i]
		if kp.Score < MinKeypointScore {
			continue
		}
		switch kp.Name {
		case "nose", "nose_tip":
			nose = kp
		case "left_eye":
			left = kp
		case "right_eye":
			right = kp
		}
	}
	if nose == nil || left == nil || right == nil {
		return Gaze{}
	}

	eyeDist := math.Abs(left.X - right.X)
	if eyeDist < 1e-6 {
		return Gaze{}
	}
	mid := (left.X + right.X) / 2
	yaw := (nose.X - mid) / eyeDist

	return Gaze{
		Available: true,
		Yaw:       yaw,
		OffScreen: math.Abs(yaw) > OffScreenYaw,
	}
}
