package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/chattervc/internal/client"
)

// speechFlags are the request flags shared by say and benchmark.
type speechFlags struct {
	model        string
	voice        string
	format       string
	sampleRate   int
	languageID   string
	cfgWeight    float64
	exaggeration float64

	rvcPitch      int
	rvcIndexRate  float64
	rvcProtect    float64
	rvcF0Method   string
	rvcVolumeEnv  float64
	rvcSplitAudio bool
	rvcAutotune   bool
	rvcCleanAudio bool
	rvcSpeakerID  int
}

func (f *speechFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.model, "model", "m", "chatterbox_rvc", "engine: chatterbox or chatterbox_rvc")
	fs.StringVar(&f.voice, "voice", "random", "voice name, id or \"random\"")
	fs.StringVarP(&f.format, "format", "f", "wav", "output format: wav, flac or ogg")
	fs.IntVar(&f.sampleRate, "sample-rate", 0, "output sample rate in Hz (server default when 0)")
	fs.StringVar(&f.languageID, "language", "", "language id for multilingual synthesis")
	fs.Float64Var(&f.cfgWeight, "cfg-weight", 0.5, "classifier-free guidance weight [0,1]")
	fs.Float64Var(&f.exaggeration, "exaggeration", 0.5, "emotion exaggeration [0,1]")

	fs.IntVar(&f.rvcPitch, "rvc-pitch", 0, "conversion pitch shift in semitones")
	fs.Float64Var(&f.rvcIndexRate, "rvc-index-rate", 0.75, "conversion index rate [0,1]")
	fs.Float64Var(&f.rvcProtect, "rvc-protect", 0.33, "conversion consonant protection [0,0.5]")
	fs.StringVar(&f.rvcF0Method, "rvc-f0-method", "rmvpe", "conversion pitch extraction method")
	fs.Float64Var(&f.rvcVolumeEnv, "rvc-volume-envelope", 1.0, "conversion volume envelope mix [0,1]")
	fs.BoolVar(&f.rvcSplitAudio, "rvc-split-audio", false, "split audio before conversion")
	fs.BoolVar(&f.rvcAutotune, "rvc-f0-autotune", false, "autotune the converted pitch")
	fs.BoolVar(&f.rvcCleanAudio, "rvc-clean-audio", false, "denoise the converted audio")
	fs.IntVar(&f.rvcSpeakerID, "rvc-sid", 0, "conversion speaker id")
}

// request builds a speech request. Flags the user did not set are left out so
// that the server defaults apply.
func (f *speechFlags) request(cmd *cobra.Command, text string) client.SpeechRequest {
	changed := cmd.Flags().Changed
	req := client.SpeechRequest{
		Model:      f.model,
		Input:      text,
		Voice:      f.voice,
		Format:     f.format,
		SampleRate: f.sampleRate,
		LanguageID: f.languageID,
	}
	if changed("cfg-weight") {
		req.CFGWeight = &f.cfgWeight
	}
	if changed("exaggeration") {
		req.Exaggeration = &f.exaggeration
	}

	extra := map[string]any{}
	for flag, kv := range map[string]struct {
		key string
		val any
	}{
		"rvc-pitch":           {"rvc_pitch", f.rvcPitch},
		"rvc-index-rate":      {"rvc_index_rate", f.rvcIndexRate},
		"rvc-protect":         {"rvc_protect", f.rvcProtect},
		"rvc-f0-method":       {"rvc_f0_method", f.rvcF0Method},
		"rvc-volume-envelope": {"rvc_volume_envelope", f.rvcVolumeEnv},
		"rvc-split-audio":     {"rvc_split_audio", f.rvcSplitAudio},
		"rvc-f0-autotune":     {"rvc_f0_autotune", f.rvcAutotune},
		"rvc-clean-audio":     {"rvc_clean_audio", f.rvcCleanAudio},
		"rvc-sid":             {"rvc_sid", f.rvcSpeakerID},
	} {
		if changed(flag) {
			extra[kv.key] = kv.val
		}
	}
	if len(extra) > 0 {
		req.Extra = extra
	}
	return req
}

func newSayCmd(g *globalOptions) *cobra.Command {
	var (
		flags speechFlags
		out   string
	)
	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Synthesise text into an audio file",
		Long: `Synthesises text with the selected voice and engine and writes the
audio to a file.

Examples:
  chattervc-cli say Hello, this is a test.
  chattervc-cli say --voice alice --format flac -o hello.flac Hello there
  chattervc-cli say --model chatterbox --voice bob "No conversion stage"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			c, err := g.client()
			if err != nil {
				return err
			}
			sp, err := c.Speech(cmd.Context(), flags.request(cmd, text))
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				path = "speech." + strings.ToLower(flags.format)
			}
			if err := os.WriteFile(path, sp.Audio, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}

			applied := "no"
			if sp.ConversionApplied {
				applied = "yes"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, %s)\n", path, len(sp.Audio), sp.ContentType)
			fmt.Fprintf(cmd.OutOrStdout(), "voice=%s model=%s conversion=%s synthesis_rate=%d\n",
				sp.Voice, sp.Model, applied, sp.SynthesisSampleRate)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default speech.<format>)")
	return cmd
}
