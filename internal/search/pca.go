package search

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// project computes a 3D PCA projection of the result embeddings together
// with the query embedding and writes the coordinates into resp. The
// projection is fit per response: axes are the three directions of largest
// variance within this result set, which is what makes the scatter readable.
func (e *Engine) project(granted []candidate, query []float32, resp *Response) {
	n := len(granted) + 1
	if n < 4 {
		// Centered data has rank at most n-1, so three points cannot span
		// three components.
		return
	}
	dim := len(query)
	for _, c := range granted {
		if len(c.point.Dense) != dim {
			return
		}
	}

	data := mat.NewDense(n, dim, nil)
	for i, c := range granted {
		for j, v := range c.point.Dense {
			data.Set(i, j, float64(v))
		}
	}
	for j, v := range query {
		data.Set(n-1, j, float64(v))
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, comps := vecs.Dims()
	if comps < 3 {
		return
	}

	// Center before projecting onto the first three components.
	means := make([]float64, dim)
	for j := 0; j < dim; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += data.At(i, j)
		}
		means[j] = sum / float64(n)
	}

	coords := func(row int) []float64 {
		out := make([]float64, 3)
		for j := 0; j < dim; j++ {
			centered := data.At(row, j) - means[j]
			for axis := 0; axis < 3; axis++ {
				out[axis] += centered * vecs.At(j, axis)
			}
		}
		return out
	}

	for i := range resp.Results {
		resp.Results[i].Coords = coords(i)
	}
	resp.QueryCoords = coords(n - 1)
}
