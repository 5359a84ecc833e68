// Package textoverlay implements the TEXT_OVERLAY operation: drawing styled,
// optionally animated text onto a video via ffmpeg's drawtext filter.
package textoverlay

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"videopipe/internal/apierrors"
	"videopipe/internal/mediatool"
	"videopipe/internal/models"
	"videopipe/internal/processor"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Processor implements processor.Processor for TEXT_OVERLAY jobs.
type Processor struct {
	deps processor.Deps
}

// New constructs a textoverlay Processor.
func New(deps processor.Deps) *Processor {
	return &Processor{deps: deps}
}

// Validate runs struct-tag validation against the config and checks the
// referenced video asset exists and has a video stream.
func (p *Processor) Validate(ctx context.Context, raw models.JobConfig) error {
	cfg, ok := raw.(models.TextOverlayConfig)
	if !ok {
		return apierrors.NewValidation("textoverlay: wrong config type %T", raw)
	}
	if err := validate.Struct(cfg); err != nil {
		return apierrors.WrapValidation(err, "text overlay config")
	}
	video, err := p.deps.Assets.Get(ctx, cfg.VideoFileID)
	if err != nil {
		return err
	}
	if video.IsDeleted {
		return apierrors.NewNotFound("asset", cfg.VideoFileID)
	}
	if video.ProbeMetadata == nil || !video.ProbeMetadata.HasStream("video") {
		return apierrors.NewValidation("asset %d has no video stream", cfg.VideoFileID)
	}
	return nil
}

// Run fetches the video locally and burns the composed drawtext expression
// into it.
func (p *Processor) Run(ctx context.Context, raw models.JobConfig, in processor.ProcessorInput, progress func(float64)) (processor.ProcessorOutput, error) {
	cfg := raw.(models.TextOverlayConfig)

	videoPath, err := processor.ResolvePrimary(ctx, p.deps, in, cfg.VideoFileID, in.WorkDir)
	if err != nil {
		return processor.ProcessorOutput{}, err
	}
	video, _ := p.deps.Assets.Get(ctx, cfg.VideoFileID)
	duration := 0.0
	if video.ProbeMetadata != nil {
		duration = video.ProbeMetadata.Duration
	}

	drawtext := buildDrawtext(cfg)
	outputPath := filepath.Join(in.WorkDir, "text_overlay_output.mp4")
	args := mediatool.TextOverlayArgs(videoPath, outputPath, mediatool.TextOverlaySpec{DrawtextFilter: drawtext}, p.deps.Preset)

	if _, err := p.deps.Tool.Run(ctx, p.deps.HWAccel, args, duration, progress); err != nil {
		return processor.ProcessorOutput{}, err
	}

	return processor.ProcessorOutput{
		OutputPath: outputPath,
		Result:     models.JobResult{OutputPath: outputPath, DurationS: duration},
	}, nil
}

// Cleanup is a no-op: the work directory is owned by the caller.
func (p *Processor) Cleanup() {}

// buildDrawtext composes the full drawtext=... filter expression from
// position, style, decorations, animation, rotation, and the enable window,
// per spec.md §4.4.3. Opacity scales only the animated alpha expression; it
// has no effect on text without a fade animation.
func buildDrawtext(cfg models.TextOverlayConfig) string {
	parts := []string{
		fmt.Sprintf("text='%s'", mediatool.EscapeDrawtext(cfg.Text)),
		fmt.Sprintf("fontsize=%d", cfg.Style.FontSize),
		fmt.Sprintf("fontcolor=%s@%s", hexToFFColor(cfg.Style.Color), formatAlpha(cfg.Style.Alpha)),
	}
	if cfg.Style.FontFamily != "" {
		parts = append(parts, fmt.Sprintf("font='%s'", cfg.Style.FontFamily))
	}

	x, y := resolvePosition(cfg.Position)
	parts = append(parts, fmt.Sprintf("x=%s", x), fmt.Sprintf("y=%s", y))

	if cfg.Background != nil {
		parts = append(parts,
			"box=1",
			fmt.Sprintf("boxcolor=%s@%s", hexToFFColor(cfg.Background.Color), formatAlpha(cfg.Background.Alpha)),
			fmt.Sprintf("boxborderw=%d", cfg.Background.Padding),
		)
	}
	if cfg.Border != nil {
		parts = append(parts,
			fmt.Sprintf("borderw=%d", cfg.Border.Width),
			fmt.Sprintf("bordercolor=%s", hexToFFColor(cfg.Border.Color)),
		)
	}
	if cfg.Shadow != nil {
		parts = append(parts,
			fmt.Sprintf("shadowx=%d", cfg.Shadow.OffsetX),
			fmt.Sprintf("shadowy=%d", cfg.Shadow.OffsetY),
		)
		if cfg.Shadow.Color != "" {
			parts = append(parts, fmt.Sprintf("shadowcolor=%s", hexToFFColor(cfg.Shadow.Color)))
		}
	}

	enableEnd := cfg.EndTime
	if enableEnd == 0 {
		enableEnd = 1e9 // effectively unbounded when unset
	}
	parts = append(parts, fmt.Sprintf("enable='between(t,%s,%s)'", trimFloat(cfg.StartTime), trimFloat(enableEnd)))

	if cfg.Animation != nil {
		if alphaExpr := animationAlphaExpr(*cfg.Animation, cfg.StartTime, cfg.Opacity); alphaExpr != "" {
			// Override fontcolor's flat alpha with an animated expression.
			for i, part := range parts {
				if strings.HasPrefix(part, "fontcolor=") {
					parts[i] = fmt.Sprintf("fontcolor=%s", hexToFFColor(cfg.Style.Color))
					parts = append(parts, fmt.Sprintf("alpha='%s'", alphaExpr))
					break
				}
			}
		}
	}

	filter := "drawtext=" + strings.Join(parts, ":")
	if cfg.Rotation != 0 {
		// drawtext has no rotation parameter of its own; chain the rotate
		// filter after it. Output keeps the input's frame size (rotate's
		// ow/oh default to iw/ih), so corners clip past +/-45deg or so.
		filter += fmt.Sprintf(",rotate=%s", trimFloat(cfg.Rotation*math.Pi/180))
	}
	return filter
}

// resolvePosition translates the absolute/relative position model into
// ffmpeg x/y expressions understood by drawtext (w/h/text_w/text_h are
// drawtext built-ins referring to frame and rendered-text dimensions).
func resolvePosition(pos models.TextPosition) (x, y string) {
	if pos.Type == "absolute" {
		return fmt.Sprintf("%d", pos.X), fmt.Sprintf("%d", pos.Y)
	}
	mx, my := pos.MarginX, pos.MarginY
	switch pos.Anchor {
	case "top-left":
		return fmt.Sprintf("%d", mx), fmt.Sprintf("%d", my)
	case "top-center":
		return "(w-text_w)/2", fmt.Sprintf("%d", my)
	case "top-right":
		return fmt.Sprintf("w-text_w-%d", mx), fmt.Sprintf("%d", my)
	case "center-left":
		return fmt.Sprintf("%d", mx), "(h-text_h)/2"
	case "center":
		return "(w-text_w)/2", "(h-text_h)/2"
	case "center-right":
		return fmt.Sprintf("w-text_w-%d", mx), "(h-text_h)/2"
	case "bottom-left":
		return fmt.Sprintf("%d", mx), fmt.Sprintf("h-text_h-%d", my)
	case "bottom-center":
		return "(w-text_w)/2", fmt.Sprintf("h-text_h-%d", my)
	case "bottom-right":
		return fmt.Sprintf("w-text_w-%d", mx), fmt.Sprintf("h-text_h-%d", my)
	default:
		return "(w-text_w)/2", "(h-text_h)/2"
	}
}

// animationAlphaExpr returns a drawtext alpha expression implementing the
// requested fade effect (fade-in, fade-out, fade), or "" for any other kind:
// "none", slide-* and zoom-* produce no animation.
func animationAlphaExpr(anim models.Animation, startTime, baseOpacity float64) string {
	if baseOpacity == 0 {
		baseOpacity = 1
	}
	t0 := startTime + anim.Delay
	t1 := t0 + anim.Duration
	switch anim.Kind {
	case "fade-in":
		return fmt.Sprintf("if(lt(t,%s),%s*(t-%s)/%s,%s)", trimFloat(t1), trimFloat(baseOpacity), trimFloat(t0), trimFloat(anim.Duration), trimFloat(baseOpacity))
	case "fade-out":
		return fmt.Sprintf("if(gt(t,%s),%s*(1-(t-%s)/%s),%s)", trimFloat(t0), trimFloat(baseOpacity), trimFloat(t0), trimFloat(anim.Duration), trimFloat(baseOpacity))
	case "fade":
		return fmt.Sprintf("if(lt(t,%s),%s*(t-%s)/%s,if(gt(t,%s),%s*(1-(t-%s)/%s),%s))",
			trimFloat(t1), trimFloat(baseOpacity), trimFloat(t0), trimFloat(anim.Duration),
			trimFloat(t1), trimFloat(baseOpacity), trimFloat(t1), trimFloat(anim.Duration), trimFloat(baseOpacity))
	default:
		return ""
	}
}

func hexToFFColor(hex string) string {
	return "0x" + strings.TrimPrefix(hex, "#")
}

func formatAlpha(a float64) string {
	if a == 0 {
		a = 1
	}
	return trimFloat(a)
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
