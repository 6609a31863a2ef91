// Package keypoints contains interest points with descriptors and their matching across two
// images under an epipolar constraint.
package keypoints

import (
	"github.com/golang/geo/r2"
)

// InterestPoint is a detected feature: a subpixel location in a (possibly processed) image, its
// detector response and a fixed length descriptor.
type InterestPoint struct {
	X          float64   `json:"x" yaml:"x"`
	Y          float64   `json:"y" yaml:"y"`
	Interest   float64   `json:"interest" yaml:"interest"`
	Descriptor []float64 `json:"descriptor" yaml:"descriptor"`
}

// Point returns the location of the interest point.
func (ip InterestPoint) Point() r2.Point {
	return r2.Point{X: ip.X, Y: ip.Y}
}

// Points returns the locations of the interest points.
func Points(ips []InterestPoint) []r2.Point {
	out := make([]r2.Point, len(ips))
	for i, ip := range ips {
		out[i] = ip.Point()
	}
	return out
}

// NoMatch marks a feature of the first image with no accepted match.
const NoMatch = -1

// MatchResult holds, for each feature of the first image, the index of its match in the second
// image or NoMatch.
type MatchResult []int

// NewMatchResult returns a result of length n with every entry set to NoMatch.
func NewMatchResult(n int) MatchResult {
	res := make(MatchResult, n)
	for i := range res {
		res[i] = NoMatch
	}
	return res
}

// Count returns the number of matched features.
func (m MatchResult) Count() int {
	n := 0
	for _, idx := range m {
		if idx != NoMatch {
			n++
		}
	}
	return n
}

// MatchedPairs collects the matched interest points of both images in first-image order, along
// with the first-image index of each pair.
func MatchedPairs(result MatchResult, ip1, ip2 []InterestPoint) ([]InterestPoint, []InterestPoint, []int) {
	m1 := make([]InterestPoint, 0, len(result))
	m2 := make([]InterestPoint, 0, len(result))
	idx1 := make([]int, 0, len(result))
	for i, j := range result {
		if j == NoMatch || i >= len(ip1) || j < 0 || j >= len(ip2) {
			continue
		}
		m1 = append(m1, ip1[i])
		m2 = append(m2, ip2[j])
		idx1 = append(idx1, i)
	}
	return m1, m2, idx1
}
