//go:build containers_image_openpgp && containers_image_storage_stub && containers_image_docker_daemon_stub

package registry

import (
	"encoding/json/v2"
	"fmt"
	"io"
	"strings"

	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// parseOCIConfig parses an OCI image config blob.
func parseOCIConfig(data []byte) (*imgspecv1.Image, error) {
	var img imgspecv1.Image
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("parse OCI config: %w", err)
	}
	return &img, nil
}

// extractDockerHealthcheck parses the raw config blob for a Docker
// HEALTHCHECK and renders its Test array into the same exec-string shape
// contract.extractHealthcheck builds from a Dockerfile HEALTHCHECK CMD
// instruction. The OCI image spec (imgspecv1.ImageConfig) has no
// Healthcheck field, but Docker image configs on registries carry one
// under "config.Healthcheck" — this lets a base image's own HEALTHCHECK
// corroborate a stage that never redeclares one, since Docker inherits it
// unless overridden.
func extractDockerHealthcheck(configBytes []byte) (exec string, ok bool) {
	var dockerCfg struct {
		Config struct {
			Healthcheck *struct {
				Test []string `json:",omitempty"`
			} `json:"Healthcheck,omitempty"`
		} `json:"config"`
	}
	if err := json.Unmarshal(configBytes, &dockerCfg); err != nil {
		return "", false
	}
	hc := dockerCfg.Config.Healthcheck
	if hc == nil {
		return "", false
	}
	return parseDockerHealthcheckTest(hc.Test)
}

// parseDockerHealthcheckTest renders a Docker HEALTHCHECK Test array
// ("CMD-SHELL", shell | "CMD", argv... | "NONE") into a single exec
// string, the way a CMD-SHELL healthcheck already is one and a CMD-form
// healthcheck's argv joins the same way exec-form ENTRYPOINT/CMD does.
func parseDockerHealthcheckTest(test []string) (string, bool) {
	if len(test) == 0 {
		return "", false
	}
	switch test[0] {
	case "NONE":
		return "", false
	case "CMD-SHELL":
		if len(test) < 2 {
			return "", false
		}
		return test[1], true
	case "CMD":
		if len(test) < 2 {
			return "", false
		}
		return strings.Join(test[1:], " "), true
	default:
		// Some registries omit the marker and store the argv directly.
		return strings.Join(test, " "), true
	}
}

// readAll reads up to maxBytes from r.
func readAll(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}
