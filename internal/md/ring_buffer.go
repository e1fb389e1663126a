package md

import "errors"

var ErrInsufficientData = errors.New("not enough data in window")

// RingBuffer keeps the most recent size values, oldest first.
type RingBuffer struct {
	values []float64
	size   int
	index  int
	filled bool
}

func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{
		values: make([]float64, size),
		size:   size,
	}
}

func (r *RingBuffer) Add(value float64) {
	r.values[r.index] = value
	r.index = (r.index + 1) % r.size
	if r.index == 0 {
		r.filled = true
	}
}

func (r *RingBuffer) Len() int {
	if r.filled {
		return r.size
	}
	return r.index
}

func (r *RingBuffer) Full() bool {
	return r.filled
}

func (r *RingBuffer) Reset() {
	r.index = 0
	r.filled = false
}

func (r *RingBuffer) Values() []float64 {
	length := r.Len()
	result := make([]float64, 0, length)
	if length == 0 {
		return result
	}
	if r.filled {
		result = append(result, r.values[r.index:]...)
	}
	result = append(result, r.values[:r.index]...)
	return result
}

// Back returns the value n positions before the newest one; Back(0) is the
// newest.
func (r *RingBuffer) Back(n int) (float64, error) {
	if n < 0 || n >= r.Len() {
		return 0, ErrInsufficientData
	}
	i := (r.index - 1 - n + r.size) % r.size
	return r.values[i], nil
}

// Mean averages the newest window values.
func (r *RingBuffer) Mean(window int) (float64, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}
	if r.Len() < window {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for n := 0; n < window; n++ {
		v, _ := r.Back(n)
		sum += v
	}
	return sum / float64(window), nil
}
