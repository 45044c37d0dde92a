package storage

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
)

// ModelcarURI renders the oci:// storage URI for a modelcar image.
func ModelcarURI(image string) string {
	return "oci://" + strings.TrimPrefix(image, "oci://")
}

// ImageReference parses and normalizes a modelcar image reference,
// stripping any oci:// scheme.
func ImageReference(image string) (name.Reference, error) {
	ref, err := name.ParseReference(strings.TrimPrefix(image, "oci://"))
	if err != nil {
		return nil, fmt.Errorf("invalid modelcar image %q: %w", image, err)
	}
	return ref, nil
}

// ImageDigest resolves the digest of a modelcar image in the registry.
// Used to pin a modelcar before handing it to an InferenceService.
func ImageDigest(image string, opts ...crane.Option) (string, error) {
	ref, err := ImageReference(image)
	if err != nil {
		return "", err
	}
	digest, err := crane.Digest(ref.Name(), opts...)
	if err != nil {
		return "", fmt.Errorf("failed to resolve digest for %s: %w", image, err)
	}
	return digest, nil
}

// ImageExists reports whether the modelcar image is pullable.
func ImageExists(image string, opts ...crane.Option) (bool, error) {
	_, err := ImageDigest(image, opts...)
	if err == nil {
		return true, nil
	}
	if strings.Contains(err.Error(), "MANIFEST_UNKNOWN") || strings.Contains(err.Error(), "NAME_UNKNOWN") {
		return false, nil
	}
	return false, err
}
