package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIngestionResult_RowCount(t *testing.T) {
	tests := []struct {
		name  string
		items []IngestedItem
		want  int
	}{
		{
			name: "single row items count one each",
			items: []IngestedItem{
				{Kind: KindRow, Row: map[string]interface{}{"id": 1}},
				{Kind: KindRow, Row: map[string]interface{}{"id": 2}},
			},
			want: 2,
		},
		{
			name: "rows item counts its length",
			items: []IngestedItem{
				{Kind: KindRows, Rows: []map[string]interface{}{{"id": 1}, {"id": 2}, {"id": 3}}},
			},
			want: 3,
		},
		{
			name: "scalar and pre-staged items contribute nothing",
			items: []IngestedItem{
				{Kind: KindScalar, Scalar: 42},
				{Kind: KindPreStaged, PreStagedPath: "/tmp/a.parquet"},
			},
			want: 0,
		},
		{
			name: "mixed kinds sum correctly",
			items: []IngestedItem{
				{Kind: KindRow, Row: map[string]interface{}{"id": 1}},
				{Kind: KindRows, Rows: []map[string]interface{}{{"id": 2}, {"id": 3}}},
				{Kind: KindScalar, Scalar: "count=3"},
			},
			want: 3,
		},
		{
			name:  "no items",
			items: nil,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := &IngestionResult{Protocol: "test", Success: true, Items: tt.items, FetchedAt: time.Now()}
			assert.Equal(t, tt.want, result.RowCount())
		})
	}
}
