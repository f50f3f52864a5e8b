package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, 0, int(StatusApproved))
	assert.Equal(t, 1, int(StatusRejected))
	assert.Equal(t, 2, int(StatusWaiting))

	assert.True(t, StatusWaiting.Valid())
	assert.False(t, Status(3).Valid())
	assert.False(t, StatusWaiting.Terminal())
	assert.True(t, StatusRejected.Terminal())

	assert.Equal(t, "Approved", StatusApproved.String())
	assert.Equal(t, "Status(7)", Status(7).String())
	assert.Equal(t, "green", StatusApproved.Color())
	assert.Equal(t, "red", StatusRejected.Color())
}

func TestParseStatusFilter(t *testing.T) {
	assert.Nil(t, ParseStatusFilter(-1))
	assert.Nil(t, ParseStatusFilter(9))

	s := ParseStatusFilter(1)
	if assert.NotNil(t, s) {
		assert.Equal(t, StatusRejected, *s)
	}
}

func TestNewPage(t *testing.T) {
	p := NewPage([]int{1, 2}, 5, 2, 2)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasPreviousPage)
	assert.True(t, p.HasNextPage)

	p = NewPage([]int{5}, 5, 3, 2)
	assert.False(t, p.HasNextPage)

	page, size := NormalizePaging(0, 500)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, size)
}
