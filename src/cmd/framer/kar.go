// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/utility/kar"
	"github.com/spf13/cobra"
)

var (
	karAuthor  string
	karVersion int64
	karOutput  string
	karDir     string
	karForce   bool
)

var karCmd = &cobra.Command{
	Use:   "kar",
	Short: "Build and read kar archives",
	Long: `Kar archives bundle compressed files, such as compiled shaders, into
one file that the renderer memory maps.`,
}

var karBuildCmd = &cobra.Command{
	Use:   "build <dir>",
	Short: "Compress every file under dir into an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := buildArchive(args[0], karOutput, kar.Header{
			Author:      karAuthor,
			DateCreated: time.Now().Unix(),
			Version:     karVersion,
		}, karForce)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files\n", karOutput, n)
		return nil
	},
}

var karListCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List the files of an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := kar.OpenFile(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return listArchive(cmd.OutOrStdout(), f.Archive)
	},
}

var karExtractCmd = &cobra.Command{
	Use:   "extract <archive> [name...]",
	Short: "Extract files, all of them when none are named",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := kar.OpenFile(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return extractArchive(f.Archive, karDir, args[1:])
	},
}

func init() {
	name := "unknown"
	if u, err := user.Current(); err == nil {
		name = u.Name
	}

	karBuildCmd.Flags().StringVar(&karAuthor, "author", name, "Set the author of the package when compressing")
	karBuildCmd.Flags().Int64Var(&karVersion, "version", 1, "Archive version number to create it with")
	karBuildCmd.Flags().StringVarP(&karOutput, "file", "f", "out.kar", "Destination file")
	karBuildCmd.Flags().BoolVar(&karForce, "force", false, "Overwrite the destination")
	karExtractCmd.Flags().StringVarP(&karDir, "dir", "C", ".", "Destination directory")

	karCmd.AddCommand(karBuildCmd, karListCmd, karExtractCmd)
	rootCmd.AddCommand(karCmd)
}

// buildArchive adds the files under dir by their slash separated path
// relative to dir.
func buildArchive(dir, dst string, header kar.Header, force bool) (int, error) {
	if _, err := os.Stat(dst); err == nil && !force {
		return 0, errors.Newf("%s exists, will not overwrite", dst)
	}

	builder, err := kar.NewBuilder(header)
	if err != nil {
		return 0, err
	}
	defer builder.Close()

	var count int
	if err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := builder.Add(filepath.ToSlash(rel), f); err != nil {
			return err
		}
		count++
		return nil
	}); err != nil {
		return 0, errors.Wrapf(err, "walking %s", dir)
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	if _, err := builder.WriteTo(out); err != nil {
		out.Close()
		return 0, err
	}
	return count, out.Close()
}

func listArchive(w io.Writer, ar *kar.Archive) error {
	h := ar.Header()
	fmt.Fprintf(w, "author %s, version %d, created %s\n",
		h.Author, h.Version, time.Unix(h.DateCreated, 0).Format(time.RFC3339))
	for _, e := range h.Index {
		if _, err := fmt.Fprintf(w, "%10d %10d %s\n", e.Size, e.CompressedSize, e.Name); err != nil {
			return err
		}
	}
	return nil
}

func extractArchive(ar *kar.Archive, dir string, names []string) error {
	if len(names) == 0 {
		names = ar.Names()
	}
	for _, name := range names {
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return errors.Newf("%s escapes the destination", name)
		}
		data, err := ar.ReadAll(name)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
	}
	return nil
}
