package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressorsRoundTrip(t *testing.T) {
	original := []byte(strings.Repeat("id,personal_name\n\"1\",\"A\"\n", 200))

	for _, alg := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		for _, level := range []Level{Fastest, Default, Best} {
			t.Run(string(alg), func(t *testing.T) {
				comp, err := NewCompressor(&Config{Algorithm: alg, Level: level})
				require.NoError(t, err)
				assert.Equal(t, alg, comp.Algorithm())

				var compressed bytes.Buffer
				require.NoError(t, comp.CompressStream(&compressed, bytes.NewReader(original)))
				if alg != None {
					assert.Less(t, compressed.Len(), len(original))
				}

				var restored bytes.Buffer
				require.NoError(t, comp.DecompressStream(&restored, &compressed))
				assert.Equal(t, original, restored.Bytes())
			})
		}
	}
}

func TestCompressStreamChunkedSource(t *testing.T) {
	header := "id,personal_name\n"
	body := strings.Repeat("1,Ann Lee\n", 5000)

	for _, alg := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		t.Run(string(alg), func(t *testing.T) {
			comp, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
			require.NoError(t, err)

			pr, pw := io.Pipe()
			go func() {
				for i := 0; i < len(body); i += 1000 {
					end := i + 1000
					if end > len(body) {
						end = len(body)
					}
					if _, err := io.WriteString(pw, body[i:end]); err != nil {
						pw.CloseWithError(err)
						return
					}
				}
				pw.Close()
			}()

			var compressed bytes.Buffer
			require.NoError(t, comp.CompressStream(&compressed, io.MultiReader(strings.NewReader(header), pr)))

			var restored bytes.Buffer
			require.NoError(t, comp.DecompressStream(&restored, &compressed))
			assert.Equal(t, header+body, restored.String())
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		ext     string
		wantErr bool
	}{
		{in: "", want: None, ext: ""},
		{in: "none", want: None, ext: ""},
		{in: "GZIP", want: Gzip, ext: ".gz"},
		{in: " zstd ", want: Zstd, ext: ".zst"},
		{in: "lz4", want: LZ4, ext: ".lz4"},
		{in: "brotli", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ext, got.Extension())
		})
	}
}

func TestNewCompressorRejectsUnknown(t *testing.T) {
	_, err := NewCompressor(&Config{Algorithm: "deflate64"})
	assert.Error(t, err)

	comp, err := NewCompressor(nil)
	require.NoError(t, err)
	assert.Equal(t, None, comp.Algorithm())
}
