package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ushadow/orchestrator/models"
)

// composeFile is the subset of a catalog compose file the registry reads.
// Service metadata lives under the x-ushadow extension key; everything
// else in the compose file belongs to the container runtime.
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image   string         `yaml:"image"`
	XShadow *serviceExtras `yaml:"x-ushadow"`
}

type serviceExtras struct {
	ServiceID string               `yaml:"service_id"`
	Name      string               `yaml:"name"`
	Mode      models.ServiceMode   `yaml:"mode"`
	Ports     []models.ServicePort `yaml:"ports"`
	Config    []models.ConfigField `yaml:"config"`
}

// loadCatalog parses every *-compose.yaml under dir into service
// instances. Services without an x-ushadow extension are runtime-only
// and skipped. Any unreadable or malformed file aborts the whole load.
func loadCatalog(dir string) ([]models.ServiceInstance, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*-compose.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog dir: %w", err)
	}
	sort.Strings(matches)

	var services []models.ServiceInstance
	seen := make(map[string]string)

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file %s: %w", filepath.Base(path), err)
		}

		var file composeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse catalog file %s: %w", filepath.Base(path), err)
		}

		names := make([]string, 0, len(file.Services))
		for name := range file.Services {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			svc := file.Services[name]
			if svc.XShadow == nil {
				continue
			}

			id := svc.XShadow.ServiceID
			if id == "" {
				id = name
			}
			if prev, dup := seen[id]; dup {
				return nil, fmt.Errorf("duplicate service id %q in %s (already declared in %s)",
					id, filepath.Base(path), prev)
			}
			seen[id] = filepath.Base(path)

			display := svc.XShadow.Name
			if display == "" {
				display = name
			}

			mode := svc.XShadow.Mode
			if mode == "" {
				mode = models.ModeLocal
			}
			if mode != models.ModeLocal && mode != models.ModeCloud {
				return nil, fmt.Errorf("service %q: invalid mode %q", id, mode)
			}

			if err := validateSchema(id, svc.XShadow.Config); err != nil {
				return nil, err
			}

			services = append(services, models.ServiceInstance{
				ServiceID:    id,
				Name:         display,
				Mode:         mode,
				Image:        svc.Image,
				ComposeFile:  path,
				Ports:        svc.XShadow.Ports,
				ConfigSchema: svc.XShadow.Config,
			})
		}
	}

	return services, nil
}

func validateSchema(serviceID string, fields []models.ConfigField) error {
	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Key == "" {
			return fmt.Errorf("service %q: schema field with empty key", serviceID)
		}
		if keys[f.Key] {
			return fmt.Errorf("service %q: duplicate schema field %q", serviceID, f.Key)
		}
		keys[f.Key] = true

		switch f.Type {
		case models.FieldString, models.FieldBoolean, models.FieldNumber, models.FieldSecret:
		case "":
			return fmt.Errorf("service %q: field %q has no type", serviceID, f.Key)
		default:
			return fmt.Errorf("service %q: field %q has unknown type %q", serviceID, f.Key, f.Type)
		}

		if f.EnvVar != "" && strings.TrimSpace(f.EnvVar) != f.EnvVar {
			return fmt.Errorf("service %q: field %q has malformed env var binding", serviceID, f.Key)
		}
	}
	return nil
}
