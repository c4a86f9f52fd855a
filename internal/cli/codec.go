package cli

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/wasmpipe/internal/codec"
	"github.com/roach88/wasmpipe/internal/pipeline"
	"github.com/roach88/wasmpipe/internal/value"
)

// CodecOptions holds flags for the encode and decode commands.
type CodecOptions struct {
	*RootOptions
	invokeFlags
	Hex bool
	Out string
}

// EncodeData is the JSON payload of the encode command.
type EncodeData struct {
	Codec string `json:"codec"`
	Bytes int    `json:"bytes"`
	Hex   string `json:"hex"`
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encode <input>",
		Short: "Encode a JSON document with a binary codec",
		Long: `Encode a JSON document into the bytes a module would receive.

Raw bytes are written to stdout (or --out); --hex prints them as hex.

Examples:
  wasmpipe encode doc.json --hex
  wasmpipe encode doc.json --codec protobuf --out doc.pb
  echo '{"a":1}' | wasmpipe encode - --hex`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(opts, args[0], cmd)
		},
	}

	opts.addCodec(cmd)
	cmd.Flags().BoolVar(&opts.Hex, "hex", false, "print bytes as hex")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write bytes to this file")
	return cmd
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode bytes produced by a binary codec into JSON",
		Long: `Decode bytes in a codec's wire format and print the JSON document.

With --hex the file holds hex text; whitespace is ignored.

Examples:
  wasmpipe decode out.cbor
  echo a16161 01 | wasmpipe decode - --hex
  wasmpipe decode out.pb --codec protobuf --output pretty`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], cmd)
		},
	}

	opts.addCodec(cmd)
	cmd.Flags().BoolVar(&opts.Hex, "hex", false, "input is hex text")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output mode (compact|pretty|canonical)")
	cmd.Flags().BoolVar(&opts.Color, "color", false, "colorize the output")
	return cmd
}

func runEncode(opts *CodecOptions, inputPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := commandSettings(cmd, opts.RootOptions, &opts.invokeFlags)
	if err != nil {
		return err
	}
	cdc, err := codec.Get(s.Codec)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil, err)
	}

	data, err := readInput(cmd, inputPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, codeForPath(err), "failed to read input", nil, err)
	}
	doc, err := value.Decode(data)
	if err != nil {
		return formatter.Fail(ExitFailure, pipeline.CodeInvalidJSON, err.Error(), nil, err)
	}
	encoded, err := cdc.Encode(doc)
	if err != nil {
		return formatter.Fail(ExitFailure, pipeline.CodeEncode, err.Error(), nil, err)
	}

	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, encoded, 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write output", nil, err)
		}
	}

	switch {
	case opts.Format == "json":
		return formatter.Success(EncodeData{
			Codec: cdc.Name(),
			Bytes: len(encoded),
			Hex:   hex.EncodeToString(encoded),
		})
	case opts.Hex:
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(encoded))
	case opts.Out == "":
		if _, err := cmd.OutOrStdout().Write(encoded); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeWriteFailed, "failed to write output", nil, err)
		}
	default:
		formatter.VerboseLog("wrote %d bytes to %s", len(encoded), opts.Out)
	}
	return nil
}

func runDecode(opts *CodecOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := commandSettings(cmd, opts.RootOptions, &opts.invokeFlags)
	if err != nil {
		return err
	}
	cdc, err := codec.Get(s.Codec)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil, err)
	}

	data, err := readInput(cmd, path)
	if err != nil {
		return formatter.Fail(ExitCommandError, codeForPath(err), "failed to read input", nil, err)
	}
	if opts.Hex {
		if data, err = decodeHex(data); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid hex input", nil, err)
		}
	}

	doc, err := cdc.Decode(data)
	if err != nil {
		return formatter.Fail(ExitFailure, pipeline.CodeDecode, err.Error(), nil, err)
	}

	if opts.Format == "json" {
		return formatter.Success(doc)
	}
	if err := writeDocuments(cmd.OutOrStdout(), []value.Value{doc}, s.Output, s.Color); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeWriteFailed, "failed to write output", nil, err)
	}
	return nil
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// decodeHex decodes hex text, ignoring whitespace.
func decodeHex(data []byte) ([]byte, error) {
	compact := bytes.Join(bytes.Fields(data), nil)
	out := make([]byte, hex.DecodedLen(len(compact)))
	if _, err := hex.Decode(out, compact); err != nil {
		return nil, err
	}
	return out, nil
}
