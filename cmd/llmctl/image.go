package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	llm "github.com/lizzyg/llmbridge"
)

var imageCmd = &cobra.Command{
	Use:   "image <model-key> <prompt>",
	Short: "Generate images with a configured model",
	Args:  cobra.ExactArgs(2),
	RunE:  runImage,
}

func init() {
	imageCmd.Flags().IntP("n", "n", 1, "Number of images")
	imageCmd.Flags().String("aspect-ratio", "", "Aspect ratio such as 1:1 or 16:9")
	imageCmd.Flags().StringP("out", "o", ".", "Output directory")

	rootCmd.AddCommand(imageCmd)
}

func runImage(cmd *cobra.Command, args []string) error {
	router, err := newRouter(cmd)
	if err != nil {
		return err
	}
	n, _ := cmd.Flags().GetInt("n")
	aspect, _ := cmd.Flags().GetString("aspect-ratio")
	outDir, _ := cmd.Flags().GetString("out")

	res, err := router.GenerateImage(cmd.Context(), args[0], llm.ImageGenerationParams{
		Prompt:         args[1],
		NumberOfImages: n,
		AspectRatio:    aspect,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for i, item := range res.Items {
		data, err := base64.StdEncoding.DecodeString(item.Data)
		if err != nil {
			return fmt.Errorf("decoding image %d: %w", i, err)
		}
		ext := strings.TrimPrefix(item.MimeType, "image/")
		if ext == "" || ext == item.MimeType {
			ext = "png"
		}
		path := filepath.Join(outDir, fmt.Sprintf("image-%d.%s", i+1, ext))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing image: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return nil
}
