package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is the window requested through ?page=&limit=. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// PageFromQuery reads the page window, clamping bad values instead of rejecting them.
func PageFromQuery(c *fiber.Ctx) Page {
	p := Page{Number: queryInt(c, "page", 1), Size: queryInt(c, "limit", DefaultPageSize)}
	if p.Number < 1 {
		p.Number = 1
	}
	switch {
	case p.Size < 1:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Scope limits a query to the page; use with db.Scopes(p.Scope).
func (p Page) Scope(db *gorm.DB) *gorm.DB {
	return db.Offset(p.Offset()).Limit(p.Size)
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
