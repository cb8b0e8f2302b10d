package utils

import (
	"errors"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
)

var ErrInvalidHeightRange = errors.New("invalid height range")

// HeightWindowFromContext extracts 'from' and 'to' height query params.
// A missing bound is open: from defaults to 0 and to to the maximum height.
func HeightWindowFromContext(c *gin.Context) (from uint64, to uint64, err error) {
	to = math.MaxUint64
	if s := c.Query("from"); s != "" {
		if from, err = strconv.ParseUint(s, 10, 64); err != nil {
			return 0, 0, ErrInvalidHeightRange
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = strconv.ParseUint(s, 10, 64); err != nil {
			return 0, 0, ErrInvalidHeightRange
		}
	}
	if from > to {
		return 0, 0, ErrInvalidHeightRange
	}
	return from, to, nil
}

// PageFromContext reads 'page' and 'perPage', falling back to page 1 and
// defaultPerPage for missing or out-of-range values.
func PageFromContext(c *gin.Context, defaultPerPage, maxPerPage int) (page, perPage int) {
	page = 1
	if s := c.Query("page"); s != "" {
		if p, err := strconv.Atoi(s); err == nil && p > 0 {
			page = p
		}
	}

	perPage = defaultPerPage
	if s := c.Query("perPage"); s != "" {
		if p, err := strconv.Atoi(s); err == nil && p > 0 && p <= maxPerPage {
			perPage = p
		}
	}
	return page, perPage
}
