package validate

import (
	"errors"
	"fmt"
)

const (
	minSlugLen = 2
	maxSlugLen = 63
)

// Slug checks tenant slug: lowercase latin letters, digits and inner hyphens
func Slug(slug string) error {
	if len(slug) < minSlugLen || len(slug) > maxSlugLen {
		return fmt.Errorf("slug length must be between %d and %d", minSlugLen, maxSlugLen)
	}

	// It's ok to work with string as bytes here
	for i := 0; i < len(slug); i++ {
		c := slug[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-':
			if i == 0 || i == len(slug)-1 {
				return errors.New("slug must not start or end with hyphen")
			}
			if slug[i-1] == '-' {
				return errors.New("slug must not contain double hyphen")
			}
		default:
			return errors.New("slug contains invalid characters")
		}
	}

	return nil
}
