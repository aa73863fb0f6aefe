package scorer

import (
	"encoding/base64"

	"github.com/danielpatrickdp/clipeval/internal/dataset"
)

func decodeBase64Tensor(s string) ([]float32, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return dataset.DecodeTensor(b)
}
