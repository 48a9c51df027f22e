package dsp

import "math"

// biquad 二阶 IIR 滤波节（双线性变换设计，Butterworth Q=1/√2）
// 系数已按 a0 归一化
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

const butterworthQ = 0.7071067811865476 // 1/√2

// newLowPass 设计二阶 Butterworth 低通
func newLowPass(cutoffHz, rateHz float64) biquad {
	w0 := 2 * math.Pi * cutoffHz / rateHz
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * butterworthQ)

	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosw) / 2 / a0,
		b1: (1 - cosw) / a0,
		b2: (1 - cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// newHighPass 设计二阶 Butterworth 高通
func newHighPass(cutoffHz, rateHz float64) biquad {
	w0 := 2 * math.Pi * cutoffHz / rateHz
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * butterworthQ)

	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// apply 直接II型转置结构逐样本滤波，返回新切片
// 状态变量随调用局部分配，多次调用之间互不影响
func (f biquad) apply(x []float64) []float64 {
	out := make([]float64, len(x))
	var z1, z2 float64
	for i, v := range x {
		y := f.b0*v + z1
		z1 = f.b1*v - f.a1*y + z2
		z2 = f.b2*v - f.a2*y
		out[i] = y
	}
	return out
}
