package gf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saorsa-fec/fec/gf"
)

func TestMulZero(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(byte(0), gf.Mul(0, 200))
	assert.Equal(byte(0), gf.Mul(200, 0))
}

func TestMulDivRoundTrip(t *testing.T) {
	assert := assert.New(t)
	for a := 1; a < 256; a++ {
		for b := 1; b < 256; b++ {
			prod := gf.Mul(byte(a), byte(b))
			assert.Equal(byte(a), gf.Div(prod, byte(b)))
		}
	}
}

func TestInv(t *testing.T) {
	assert := assert.New(t)
	for a := 1; a < 256; a++ {
		inv := gf.Inv(byte(a))
		assert.Equal(byte(1), gf.Mul(byte(a), inv))
	}
}

func TestVecMAC(t *testing.T) {
	assert := assert.New(t)
	acc := make([]byte, 4)
	src := []byte{1, 2, 3, 4}

	gf.VecMAC(acc, src, 0)
	assert.Equal([]byte{0, 0, 0, 0}, acc)

	gf.VecMAC(acc, src, 1)
	assert.Equal(src, acc)

	acc2 := make([]byte, 4)
	gf.VecMAC(acc2, src, 5)
	for i, s := range src {
		assert.Equal(gf.Mul(5, s), acc2[i])
	}
}

func TestPowMatchesRepeatedMul(t *testing.T) {
	assert := assert.New(t)
	a := byte(7)
	got := gf.Pow(a, 5)
	want := byte(1)
	for i := 0; i < 5; i++ {
		want = gf.Mul(want, a)
	}
	assert.Equal(want, got)
}
