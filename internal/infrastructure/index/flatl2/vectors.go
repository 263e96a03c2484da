package flatl2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

const (
	snapshotKind = "embedding_index"
	vectorMagic  = "FL2V"
)

type sidecar struct {
	Documents       []domain.NewsDocument `json:"documents"`
	ModelIdentifier string                `json:"model_identifier"`
	Dimension       int                   `json:"dimension"`
	VectorCount     int                   `json:"vector_count"`
	VectorChecksum  string                `json:"vector_checksum"`
}

func metadataPath(base string) string { return base + ".json" }
func vectorPath(base string) string   { return base + ".vec" }

// encodeVectors lays out: magic, uint32 count, uint32 dim, count*dim float32 (little endian).
func encodeVectors(count, dim int, data []float32) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 12+4*len(data)))
	buf.WriteString(vectorMagic)
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(count))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(dim))
	buf.Write(hdr[:])
	var word [4]byte
	for _, f := range data {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(f))
		buf.Write(word[:])
	}
	return buf.Bytes()
}

func decodeVectors(raw []byte) (int, int, []float32, error) {
	if len(raw) < 12 || string(raw[:4]) != vectorMagic {
		return 0, 0, nil, errors.New("bad vector file header")
	}
	count := int(binary.LittleEndian.Uint32(raw[4:8]))
	dim := int(binary.LittleEndian.Uint32(raw[8:12]))
	body := raw[12:]
	if len(body) != 4*count*dim {
		return 0, 0, nil, fmt.Errorf("vector body has %d bytes, want %d", len(body), 4*count*dim)
	}
	out := make([]float32, count*dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:]))
	}
	return count, dim, out, nil
}
