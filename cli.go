package main

import (
	"github.com/jdwit/s3-image-resizer/internal/processor"
	"github.com/spf13/cobra"
)

func newRootCmd(ip *processor.ImageProcessor) *cobra.Command {
	root := &cobra.Command{
		Use:           "resizer",
		Short:         "Re-encode images from S3 object-created events",
		SilenceUsage:  true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "event <file|->",
		Short: "Process an S3 notification event read from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ip.HandleEventFile(cmd.Context(), args[0])
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "s3 <s3://bucket/prefix>",
		Short: "Process every object under an S3 prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ip.HandleS3URL(cmd.Context(), args[0])
		},
	})

	return root
}
