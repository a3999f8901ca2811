package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompensation_ScalesWithSizeRatio(t *testing.T) {
	// 等宽: 直径 10 / 笔画 10
	assert.InDelta(t, 1.0, Compensation(10, 5), 1e-9)
	// 接近: 直径 6 / 笔画 10 = 0.6
	assert.InDelta(t, 2.0, Compensation(10, 3), 1e-9)
	// 相差悬殊: 笔画 10 / 直径 40 = 0.25
	assert.InDelta(t, 3.0, Compensation(10, 20), 1e-9)
	// 没有笔画宽度就没有补偿
	assert.Equal(t, 0.0, Compensation(0, 5))
}

func TestSizeRatio_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, SizeRatio(0, 0))
	assert.InDelta(t, 1.0, SizeRatio(10, 5), 1e-9)
}

func TestPointInCircle_UsesCompensatedRadius(t *testing.T) {
	center := Point{X: 0, Y: 0}
	assert.True(t, PointInCircle(Point{X: 6, Y: 0}, center, 5, 10), "5 + 0.1*10 = 6 的边界应命中")
	assert.False(t, PointInCircle(Point{X: 6.01, Y: 0}, center, 5, 10))
	assert.True(t, PointInCircle(Point{X: 3, Y: 4}, center, 5, 0))
}

func TestDistancePointToSegment(t *testing.T) {
	a, b := Point{X: 0, Y: 0}, Point{X: 10, Y: 0}
	assert.InDelta(t, 5.0, DistancePointToSegment(Point{X: 5, Y: 5}, a, b), 1e-9)
	// 投影落在线段外时取端点距离
	assert.InDelta(t, 5.0, DistancePointToSegment(Point{X: -3, Y: 4}, a, b), 1e-9)
	assert.InDelta(t, 5.0, DistancePointToSegment(Point{X: 13, Y: -4}, a, b), 1e-9)
	// 退化线段
	assert.InDelta(t, 5.0, DistancePointToSegment(Point{X: 3, Y: 4}, a, a), 1e-9)
}

func TestSegmentIntersectsCircle(t *testing.T) {
	a, b := Point{X: -20, Y: 0}, Point{X: 20, Y: 0}
	assert.True(t, SegmentIntersectsCircle(a, b, Point{X: 0, Y: 5}, 5, 0))
	assert.False(t, SegmentIntersectsCircle(a, b, Point{X: 0, Y: 7}, 5, 0))
	// 补偿把 7 拉进范围: 5 + 0.3*8 = 7.4
	assert.True(t, SegmentIntersectsCircle(a, b, Point{X: 0, Y: 7}, 5, 8))
}

func TestInterpolate_BoundsSpacing(t *testing.T) {
	var got []Point
	Interpolate(Point{X: 0, Y: 0}, Point{X: 10, Y: 0}, 3, func(p Point) bool {
		got = append(got, p)
		return true
	})
	require.Len(t, got, 3)
	assert.Equal(t, []Point{{X: 2.5}, {X: 5}, {X: 7.5}}, got)
}

func TestInterpolate_StopsEarly(t *testing.T) {
	count := 0
	Interpolate(Point{}, Point{X: 100}, 1, func(Point) bool {
		count++
		return count < 4
	})
	assert.Equal(t, 4, count)
}

func TestInterpolate_ShortOrInvalidSpacing(t *testing.T) {
	called := false
	yield := func(Point) bool { called = true; return true }
	Interpolate(Point{}, Point{X: 2}, 3, yield)
	Interpolate(Point{}, Point{X: 20}, 0, yield)
	assert.False(t, called)
}
