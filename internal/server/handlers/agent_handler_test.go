package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mamadbah2/stockledger/internal/service/stock"
)

func TestBatchStatus(t *testing.T) {
	tests := []struct {
		name      string
		allocated int
		failed    int
		want      int
	}{
		{"all allocated", 3, 0, http.StatusOK},
		{"some failed", 2, 1, http.StatusMultiStatus},
		{"all failed", 0, 2, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := batchStatus(&stock.BatchResult{Allocated: tt.allocated, Failed: tt.failed})
			assert.Equal(t, tt.want, got)
		})
	}
}
