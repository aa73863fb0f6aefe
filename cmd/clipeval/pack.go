package main

import (
	"fmt"
	"log"

	"github.com/danielpatrickdp/clipeval/internal/dataset"
	"github.com/spf13/cobra"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build a clip shard from a manifest of raw tensors",
	Long: `pack reads a JSON-lines manifest of {"sample_id", "label", "shape", "tensor"}
entries, where tensor names a file of little-endian float32 values, and
writes the clips to one msgpack shard in manifest order.`,
	Args: cobra.NoArgs,
	RunE: runPack,
}

func init() {
	packCmd.Flags().String("manifest", "", "JSON-lines clip manifest")
	packCmd.Flags().String("out", "", "output shard path")
	packCmd.MarkFlagRequired("manifest")
	packCmd.MarkFlagRequired("out")
}

func runPack(cmd *cobra.Command, _ []string) error {
	manifest, _ := cmd.Flags().GetString("manifest")
	out, _ := cmd.Flags().GetString("out")

	n, err := dataset.PackManifest(manifest, out)
	if err != nil {
		return err
	}
	log.Printf("packed %s clips into %s", formatCount(n), out)
	fmt.Println(out)
	return nil
}
