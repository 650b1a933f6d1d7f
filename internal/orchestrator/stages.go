package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"memflow/internal/device"
	"memflow/internal/domain"
	"memflow/internal/retry"
)

// Stage names of the standard dump pipeline.
const (
	StagePowerCycle       = "PowerCycle"
	StageHandshake        = "BootloaderHandshake"
	StageVersionCheck     = "VersionCheck"
	StageInstallStager    = "InstallStager"
	StageInstallDumper    = "InstallDumper"
	StageDumpMemoryRegion = "DumpMemoryRegion"
)

// BuildDumpPipeline assembles the standard pipeline for one resolved
// job: power cycle, bootloader handshake, version check, payload
// installs, then the region dump. The dump stage writes the output file
// and fills the pipeline result.
func BuildDumpPipeline(port device.CommandPort, job domain.ResolvedJob) Pipeline {
	var result *domain.TaskResult
	p := job.Profile

	stages := []Stage{
		{
			Name:     StagePowerCycle,
			Category: retry.CategoryPower,
			Run: func(ctx context.Context, _ func(done, total int64)) error {
				if err := port.PowerOff(ctx, job.Power.Output); err != nil {
					return err
				}
				if err := wait(ctx, p.PowerOffDelay); err != nil {
					return err
				}
				if err := port.PowerOn(ctx, job.Power.Output); err != nil {
					return err
				}
				return wait(ctx, p.PowerOnDelay)
			},
		},
		{
			Name:     StageHandshake,
			Category: retry.CategoryConnection,
			Run: func(ctx context.Context, _ func(done, total int64)) error {
				return port.SendHandshake(ctx)
			},
		},
		{
			Name:     StageVersionCheck,
			Category: retry.CategoryCommunication,
			Run: func(ctx context.Context, _ func(done, total int64)) error {
				ver, err := port.ReadVersion(ctx)
				if err != nil {
					return err
				}
				log.Debug().Str("profile_id", p.ID).Str("version", ver).Msg("bootloader version")
				return nil
			},
		},
		{
			Name:     StageInstallStager,
			Category: retry.CategoryCommunication,
			Run: func(ctx context.Context, _ func(done, total int64)) error {
				return port.TransferPayload(ctx, device.PayloadStager)
			},
		},
		{
			Name:     StageInstallDumper,
			Category: retry.CategoryCommunication,
			Run: func(ctx context.Context, _ func(done, total int64)) error {
				return port.TransferPayload(ctx, device.PayloadDumper)
			},
		},
		{
			Name:     StageDumpMemoryRegion,
			Category: retry.CategoryMemoryTransfer,
			Run: func(ctx context.Context, progress func(done, total int64)) error {
				start := time.Now()
				total := int64(job.Region.Length)
				data, err := port.ReadMemoryRegion(ctx, job.Region.Start, job.Region.Length, func(done int64) {
					progress(done, total)
				})
				if err != nil {
					return err
				}
				path := outputPath(job)
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return err
				}
				elapsed := time.Since(start).Seconds()
				r := domain.TaskResult{OutputPath: path, ByteCount: int64(len(data))}
				if elapsed > 0 {
					r.Throughput = float64(len(data)) / elapsed
				}
				result = &r
				return nil
			},
		},
	}

	return Pipeline{
		Stages: stages,
		Result: func() *domain.TaskResult { return result },
	}
}

// outputPath expands the profile's naming pattern. Supported
// placeholders: {job}, {region}, {ts}.
func outputPath(job domain.ResolvedJob) string {
	pattern := job.Profile.NamePattern
	if pattern == "" {
		pattern = "{job}_{region}_{ts}.bin"
	}
	name := strings.NewReplacer(
		"{job}", sanitize(job.Profile.Name),
		"{region}", sanitize(job.Region.Name),
		"{ts}", time.Now().Format("20060102T150405"),
	).Replace(pattern)
	return filepath.Join(job.Profile.OutputDir, name)
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, string(filepath.Separator), "-")
	if s == "" {
		return "dump"
	}
	return s
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
