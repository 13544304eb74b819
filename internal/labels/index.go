package labels

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// point is a label position in the plane. Seq is the label's enumeration order and breaks ties
// between equidistant neighbours.
type point struct {
	X, Y float64
	Seq  int
}

// Compare implements kdtree.Comparable.
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	if d == 0 {
		return p.X - q.X
	}
	return p.Y - q.Y
}

// Dims implements kdtree.Comparable.
func (p point) Dims() int { return 2 }

// Distance returns the squared planar distance.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx, dy := p.X-q.X, p.Y-q.Y
	return dx*dx + dy*dy
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return plane{points: p, Dim: d}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane sorts points along one dimension for median selection.
type plane struct {
	kdtree.Dim
	points
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.points[i].X < p.points[j].X
	}
	return p.points[i].Y < p.points[j].Y
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p plane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }

// neighbour is a hit of a radius query.
type neighbour struct {
	Seq      int
	Distance float64
}

// index answers radius queries over label positions.
type index struct {
	tree *kdtree.Tree
}

func newIndex(positions []domain.Vector, seqs []int) *index {
	if len(positions) == 0 {
		return &index{}
	}
	pts := make(points, len(positions))
	for i, position := range positions {
		pts[i] = point{X: position.X, Y: position.Y, Seq: seqs[i]}
	}
	return &index{tree: kdtree.New(pts, false)}
}

// within returns every indexed label no farther than radius from center, nearest first and in
// enumeration order among equal distances.
func (ix *index) within(center domain.Vector, radius float64) []neighbour {
	if ix.tree == nil || radius < 0 {
		return nil
	}
	keeper := kdtree.NewDistKeeper(radius * radius)
	ix.tree.NearestSet(keeper, point{X: center.X, Y: center.Y})

	hits := make([]neighbour, 0, keeper.Len())
	for _, item := range keeper.Heap {
		// The keeper is seeded with a sentinel carrying no point.
		if item.Comparable == nil {
			continue
		}
		p := item.Comparable.(point)
		hits = append(hits, neighbour{Seq: p.Seq, Distance: center.Distance2D(domain.Vector{X: p.X, Y: p.Y})})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Seq < hits[j].Seq
	})
	return hits
}
