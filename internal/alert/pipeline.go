// Package alert turns detections into signed findings: evidence
// images on disk, rows in the store, audit entries, and broker
// notifications, rate-limited per detection class.
package alert

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/zypherlabs/skywarden/internal/audit"
	"github.com/zypherlabs/skywarden/internal/comms"
	"github.com/zypherlabs/skywarden/internal/crypto"
	"github.com/zypherlabs/skywarden/internal/logging"
	"github.com/zypherlabs/skywarden/internal/model"
	"github.com/zypherlabs/skywarden/internal/store"
	"github.com/zypherlabs/skywarden/internal/vision"
)

// Publisher sends alerts off-drone. A nil Publisher disables
// publishing without disabling the evidence trail.
type Publisher interface {
	PublishAlert(comms.AlertPayload) error
}

// IDGenerator mints finding ids.
type IDGenerator interface {
	New() string
}

// Position is where the drone was when a frame was captured.
type Position struct {
	Lat, Lon, Alt float64
}

// Config tunes the pipeline.
type Config struct {
	DroneID             string
	DetectionsDir       string
	ConfidenceThreshold float64
	TargetClasses       []string
	Cooldown            time.Duration
}

// Pipeline processes detector output for an active mission.
type Pipeline struct {
	cfg       Config
	store     *store.Store
	auditor   *audit.Logger
	engine    *crypto.Engine
	ids       IDGenerator
	publisher Publisher
	log       *zap.Logger

	lastAlert map[string]time.Time
	now       func() time.Time
}

func NewPipeline(cfg Config, st *store.Store, auditor *audit.Logger, engine *crypto.Engine, ids IDGenerator, pub Publisher, log *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		auditor:   auditor,
		engine:    engine,
		ids:       ids,
		publisher: pub,
		log:       log.With(logging.Component("alert")),
		lastAlert: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Process filters detections, applies the per-class cooldown, and
// records one finding per surviving detection. It returns the
// findings it created.
func (p *Pipeline) Process(missionID string, frame vision.Frame, detections []vision.Detection, pos Position) ([]model.Finding, error) {
	var findings []model.Finding
	for _, d := range detections {
		if d.Confidence < p.cfg.ConfidenceThreshold {
			continue
		}
		if !p.targeted(d.ClassName) {
			continue
		}
		now := p.now()
		if last, ok := p.lastAlert[d.ClassName]; ok && now.Sub(last) < p.cfg.Cooldown {
			p.log.Debug("alert suppressed by cooldown", logging.Class(d.ClassName))
			continue
		}
		p.lastAlert[d.ClassName] = now

		f, err := p.record(missionID, frame, d, pos)
		if err != nil {
			return findings, err
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func (p *Pipeline) targeted(class string) bool {
	if len(p.cfg.TargetClasses) == 0 {
		return true
	}
	for _, c := range p.cfg.TargetClasses {
		if c == class {
			return true
		}
	}
	return false
}

// record writes the evidence image, persists and signs the finding,
// appends the audit entry, and publishes the alert.
func (p *Pipeline) record(missionID string, frame vision.Frame, d vision.Detection, pos Position) (model.Finding, error) {
	ts := p.now().UTC()

	crop, err := vision.Crop(frame, d)
	if err != nil {
		return model.Finding{}, fmt.Errorf("crop evidence: %w", err)
	}
	imagePath, err := p.saveEvidence(crop, d.ClassName, ts)
	if err != nil {
		return model.Finding{}, err
	}
	frameHash, err := hashImage(frame.Image)
	if err != nil {
		return model.Finding{}, fmt.Errorf("hash frame: %w", err)
	}

	f := model.Finding{
		ID:             p.ids.New(),
		MissionID:      missionID,
		Timestamp:      ts.Format(time.RFC3339Nano),
		Lat:            pos.Lat,
		Lon:            pos.Lon,
		Alt:            pos.Alt,
		DetectionClass: d.ClassName,
		Confidence:     d.Confidence,
		ImagePath:      imagePath,
		ImageHash:      frameHash,
	}
	sig, err := p.engine.SignData(f.SignablePayload())
	if err != nil {
		return model.Finding{}, fmt.Errorf("sign finding: %w", err)
	}
	f.Signature = sig

	if err := p.store.SaveFinding(&f); err != nil {
		return model.Finding{}, fmt.Errorf("save finding: %w", err)
	}
	if _, err := p.auditor.Log("detection", map[string]any{
		"finding_id": f.ID,
		"mission_id": missionID,
		"class":      f.DetectionClass,
		"confidence": f.Confidence,
		"image_hash": f.ImageHash,
	}); err != nil {
		return model.Finding{}, fmt.Errorf("audit finding: %w", err)
	}

	p.log.Info("finding recorded",
		logging.FindingID(f.ID),
		logging.MissionID(missionID),
		logging.Class(f.DetectionClass),
		logging.Confidence(f.Confidence))

	if p.publisher != nil {
		err := p.publisher.PublishAlert(comms.AlertPayload{
			FindingID:  f.ID,
			MissionID:  f.MissionID,
			DroneID:    p.cfg.DroneID,
			Timestamp:  f.Timestamp,
			Class:      f.DetectionClass,
			Confidence: f.Confidence,
			Lat:        f.Lat,
			Lon:        f.Lon,
			Alt:        f.Alt,
			ImageHash:  f.ImageHash,
			Signature:  f.Signature,
		})
		if err != nil {
			// Findings persist even when the broker is unreachable.
			p.log.Warn("alert publish failed", logging.FindingID(f.ID), zap.Error(err))
		}
	}
	return f, nil
}

func (p *Pipeline) saveEvidence(img image.Image, class string, ts time.Time) (string, error) {
	if err := os.MkdirAll(p.cfg.DetectionsDir, 0o755); err != nil {
		return "", fmt.Errorf("create detections dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.jpg", class, ts.Format("20060102T150405.000Z0700"))
	path := filepath.Join(p.cfg.DetectionsDir, name)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("encode evidence: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write evidence: %w", err)
	}
	return path, nil
}

// hashImage hashes the JPEG encoding of the full frame, tying the
// finding to what the camera saw rather than just the crop.
func hashImage(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", err
	}
	return crypto.HashBytes(buf.Bytes()), nil
}
