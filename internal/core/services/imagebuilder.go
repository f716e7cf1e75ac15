package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/melih/lighthouse-classroom/internal/metrics"
	"github.com/rs/zerolog"
)

// DescriptorName is the build descriptor written next to resource content.
const DescriptorName = "Dockerfile"

// DefaultDescriptorTemplate serves the resource file as the nginx index page.
const DefaultDescriptorTemplate = `FROM nginx:alpine
COPY [{{ .ResourceFilename | quote }}, "/usr/share/nginx/html/index.html"]
EXPOSE {{ .ContainerPort }}
`

// descriptorData is what the descriptor template is rendered with.
type descriptorData struct {
	ResourceFilename string
	ContainerPort    int
}

// ImageBuilder writes build descriptors for resource content and builds tagged images.
type ImageBuilder struct {
	engine        ports.EngineClient
	tmpl          *template.Template
	containerPort int
	logger        zerolog.Logger
}

// NewImageBuilder parses descriptorTemplate (DefaultDescriptorTemplate when empty).
func NewImageBuilder(engine ports.EngineClient, descriptorTemplate string, containerPort int) (*ImageBuilder, error) {
	if descriptorTemplate == "" {
		descriptorTemplate = DefaultDescriptorTemplate
	}
	tmpl, err := template.New(DescriptorName).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(descriptorTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse descriptor template: %w", err)
	}
	return &ImageBuilder{
		engine:        engine,
		tmpl:          tmpl,
		containerPort: containerPort,
		logger:        log.WithComponent("image-builder"),
	}, nil
}

// EnsureBuildDescriptor returns the descriptor path in the content's directory,
// generating it from the template if it does not exist yet.
func (b *ImageBuilder) EnsureBuildDescriptor(contentPath string) (string, error) {
	abs, err := filepath.Abs(contentPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrContentMissing, contentPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: no file at %s", domain.ErrContentMissing, abs)
	}

	descriptor := filepath.Join(filepath.Dir(abs), DescriptorName)
	if _, err := os.Stat(descriptor); err == nil {
		return descriptor, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to stat descriptor: %w", err)
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, descriptorData{
		ResourceFilename: filepath.Base(abs),
		ContainerPort:    b.containerPort,
	}); err != nil {
		return "", fmt.Errorf("failed to render descriptor: %w", err)
	}
	if err := os.WriteFile(descriptor, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write descriptor: %w", err)
	}

	b.logger.Info().Str("descriptor", descriptor).Msg("wrote build descriptor")
	return descriptor, nil
}

// BuildImage builds imageTag from the descriptor's directory. Build errors are
// not retried.
func (b *ImageBuilder) BuildImage(ctx context.Context, descriptorPath, imageTag string) (err error) {
	defer func() { metrics.ImageBuildsTotal.WithLabelValues(metrics.Result(err)).Inc() }()

	if err := domain.ValidateName(imageTag); err != nil {
		return err
	}
	if _, err := os.Stat(descriptorPath); err != nil {
		return fmt.Errorf("%w: no descriptor at %s", domain.ErrContentMissing, descriptorPath)
	}

	b.logger.Info().Str("tag", imageTag).Str("descriptor", descriptorPath).Msg("building image")
	if err := b.engine.BuildImage(ctx, filepath.Dir(descriptorPath), imageTag); err != nil {
		if errors.Is(err, domain.ErrEngineUnreachable) || errors.Is(err, domain.ErrBuildFailure) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", domain.ErrBuildFailure, imageTag, err)
	}
	return nil
}
