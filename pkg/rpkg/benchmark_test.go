package rpkg

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/goopsie/glacierFileTools/pkg/hash"
)

func benchmarkPackage(b *testing.B, entries int) []byte {
	b.Helper()
	builder := NewBuilder(WithVersion(Version2))
	for i := 0; i < entries; i++ {
		err := builder.Add(Resource{
			ID:         hash.ResourceID(i + 1),
			Type:       TypeTemplate,
			Data:       bytes.Repeat([]byte{byte(i)}, 256),
			References: []Reference{{ID: hash.ResourceID(i + 2)}},
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	return builder.Bytes()
}

func BenchmarkOpen(b *testing.B) {
	for _, n := range []int{100, 10000} {
		data := benchmarkPackage(b, n)
		b.Run(fmt.Sprintf("entries_%d", n), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Open(bytes.NewReader(data), int64(len(data))); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkMarshalTables(b *testing.B) {
	data := benchmarkPackage(b, 10000)
	p, err := Open(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.MarshalTables(); err != nil {
			b.Fatal(err)
		}
	}
}
