package keypoints

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is a descriptor search hit: the index of an interest point and the Euclidean distance
// between descriptors.
type Neighbor struct {
	Index    int
	Distance float64
}

// DescriptorIndex answers exact k-nearest-neighbor queries over the descriptors of a set of
// interest points. It is read only after construction and safe for concurrent queries.
type DescriptorIndex struct {
	tree *kdtree.Tree
	dims int
}

// NewDescriptorIndex builds an index over the descriptors of ips. All descriptors must share
// one non-zero length.
func NewDescriptorIndex(ips []InterestPoint) (*DescriptorIndex, error) {
	if len(ips) == 0 {
		return &DescriptorIndex{}, nil
	}
	dims := len(ips[0].Descriptor)
	if dims == 0 {
		return nil, errors.New("interest points must have descriptors to be indexed")
	}
	set := make(descriptorSet, len(ips))
	for i, ip := range ips {
		if len(ip.Descriptor) != dims {
			return nil, errors.Errorf("descriptor %d has length %d, expected %d", i, len(ip.Descriptor), dims)
		}
		set[i] = indexedDescriptor{values: ip.Descriptor, index: i}
	}
	return &DescriptorIndex{tree: kdtree.New(set, false), dims: dims}, nil
}

// Len returns the number of indexed descriptors.
func (idx *DescriptorIndex) Len() int {
	if idx.tree == nil {
		return 0
	}
	return idx.tree.Len()
}

// Nearest returns up to k neighbors of desc ordered by increasing distance. Ties are broken by
// index.
func (idx *DescriptorIndex) Nearest(desc []float64, k int) ([]Neighbor, error) {
	if idx.tree == nil || k <= 0 {
		return nil, nil
	}
	if len(desc) != idx.dims {
		return nil, errors.Errorf("query descriptor has length %d, expected %d", len(desc), idx.dims)
	}
	keeper := kdtree.NewNKeeper(k)
	idx.tree.NearestSet(keeper, indexedDescriptor{values: desc, index: -1})

	out := make([]Neighbor, 0, keeper.Len())
	for _, c := range keeper.Heap {
		if c.Comparable == nil {
			continue
		}
		out = append(out, Neighbor{Index: c.Comparable.(indexedDescriptor).index, Distance: math.Sqrt(c.Dist)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

type indexedDescriptor struct {
	values []float64
	index  int
}

func (d indexedDescriptor) Compare(c kdtree.Comparable, dim kdtree.Dim) float64 {
	return d.values[dim] - c.(indexedDescriptor).values[dim]
}

func (d indexedDescriptor) Dims() int {
	return len(d.values)
}

// Distance is the squared Euclidean distance, as kdtree expects.
func (d indexedDescriptor) Distance(c kdtree.Comparable) float64 {
	other := c.(indexedDescriptor).values
	var sum float64
	for i, v := range d.values {
		diff := v - other[i]
		sum += diff * diff
	}
	return sum
}

type descriptorSet []indexedDescriptor

func (s descriptorSet) Index(i int) kdtree.Comparable {
	return s[i]
}

func (s descriptorSet) Len() int {
	return len(s)
}

func (s descriptorSet) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}

func (s descriptorSet) Pivot(d kdtree.Dim) int {
	plane := descriptorPlane{Dim: d, descriptorSet: s}
	return kdtree.Partition(plane, kdtree.MedianOfRandoms(plane, 100))
}

type descriptorPlane struct {
	kdtree.Dim
	descriptorSet
}

func (p descriptorPlane) Less(i, j int) bool {
	return p.descriptorSet[i].values[p.Dim] < p.descriptorSet[j].values[p.Dim]
}

func (p descriptorPlane) Swap(i, j int) {
	p.descriptorSet[i], p.descriptorSet[j] = p.descriptorSet[j], p.descriptorSet[i]
}

func (p descriptorPlane) Slice(start, end int) kdtree.SortSlicer {
	p.descriptorSet = p.descriptorSet[start:end]
	return p
}
