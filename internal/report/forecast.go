package report

// autoForecast 用非零实际值做最小二乘线性回归 y = a·x + b（x 为周期序号），
// 只为最后一个非零实际值之后的周期给出预测。
// 没有非零点时返回 nil；只有一个非零点时按该值水平外推。负值不截断
func autoForecast(values []float64) map[int]float64 {
	var xs, ys []float64
	last := -1
	for i, v := range values {
		if v != 0 {
			xs = append(xs, float64(i))
			ys = append(ys, v)
			last = i
		}
	}
	if len(xs) == 0 {
		return nil
	}

	out := make(map[int]float64)
	flat := func(v float64) map[int]float64 {
		for i := last + 1; i < len(values); i++ {
			out[i] = v
		}
		return out
	}
	if len(xs) == 1 {
		return flat(ys[0])
	}

	n := float64(len(xs))
	var sumX, sumY, sumXX, sumXY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXX += xs[i] * xs[i]
		sumXY += xs[i] * ys[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return flat(ys[len(ys)-1])
	}
	a := (n*sumXY - sumX*sumY) / denom
	b := (sumY - a*sumX) / n

	for i := last + 1; i < len(values); i++ {
		out[i] = a*float64(i) + b
	}
	return out
}
