package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/cartonfs/carton/internal/bytesize"
)

// Validate checks the configuration against the struct validation tags
// and the cross-field rules that tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				return fmt.Errorf("invalid value for %s: failed %q constraint", fe.Namespace(), fe.Tag())
			}
		}
		return err
	}

	// Global free-list limits below the per-list limit would make the
	// per-list limit unreachable.
	if err := validateFreeList(&cfg.FreeList); err != nil {
		return err
	}

	return nil
}

func validateFreeList(fl *FreeListConfig) error {
	pairs := []struct {
		name            string
		perList, global bytesize.ByteSize
	}{
		{"regular", fl.RegularPerList, fl.RegularGlobal},
		{"array", fl.ArrayPerList, fl.ArrayGlobal},
		{"block", fl.BlockPerList, fl.BlockGlobal},
	}
	for _, p := range pairs {
		if p.global != 0 && p.perList != 0 && p.global < p.perList {
			return fmt.Errorf("freelist %s global limit %s is below the per-list limit %s",
				p.name, p.global, p.perList)
		}
	}
	return nil
}
