package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ebogdum/archivefs/archives"
	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/core"
	"github.com/ebogdum/archivefs/metadata"
)

var (
	archivePathType string
	archivePath     string
	formatInfo      metadata.FormatInfo
	iconFile        string
)

func addAdminCommands(root *cobra.Command) {
	formatCmd := &cobra.Command{
		Use:   "format <archive-type>",
		Short: "Format an archive, erasing its content",
		Args:  cobra.ExactArgs(1),
		RunE:  runFormat,
	}
	addArchivePathFlags(formatCmd)
	addFormatInfoFlags(formatCmd)

	formatInfoCmd := &cobra.Command{
		Use:   "formatinfo <archive-type>",
		Short: "Show the format info recorded for an archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runFormatInfo,
	}
	addArchivePathFlags(formatInfoCmd)

	extdataCmd := &cobra.Command{
		Use:   "extdata",
		Short: "Manage ext save data containers",
	}
	extdataCreateCmd := &cobra.Command{
		Use:   "create <media> <high> <low>",
		Short: "Create and format an ext save data container",
		Args:  cobra.ExactArgs(3),
		RunE:  runExtDataCreate,
	}
	addFormatInfoFlags(extdataCreateCmd)
	extdataCreateCmd.Flags().StringVar(&iconFile, "icon", "", "File holding the SMDH icon")
	extdataCmd.AddCommand(extdataCreateCmd, &cobra.Command{
		Use:   "delete <media> <high> <low>",
		Short: "Delete an ext save data container",
		Args:  cobra.ExactArgs(3),
		RunE:  runExtDataDelete,
	})

	sysdataCmd := &cobra.Command{
		Use:   "sysdata",
		Short: "Manage system save data containers",
	}
	sysdataCmd.AddCommand(&cobra.Command{
		Use:   "create <high> <low>",
		Short: "Create a system save data container",
		Args:  cobra.ExactArgs(2),
		RunE:  runSysDataCreate,
	}, &cobra.Command{
		Use:   "delete <high> <low>",
		Short: "Delete a system save data container",
		Args:  cobra.ExactArgs(2),
		RunE:  runSysDataDelete,
	})

	lsCmd := &cobra.Command{
		Use:   "ls <archive-type> [directory]",
		Short: "List a directory inside an archive",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runList,
	}
	addArchivePathFlags(lsCmd)

	root.AddCommand(formatCmd, formatInfoCmd, extdataCmd, sysdataCmd, lsCmd)
}

func addArchivePathFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&archivePathType, "path-type", "empty", "Archive path type: empty, binary, char or wchar")
	cmd.Flags().StringVar(&archivePath, "path", "", "Archive path; hex for binary paths")
}

func addFormatInfoFlags(cmd *cobra.Command) {
	cmd.Flags().Uint32Var(&formatInfo.TotalSize, "total-size", 0, "Size quota in bytes")
	cmd.Flags().Uint32Var(&formatInfo.NumberDirectories, "directories", 0, "Maximum number of directories")
	cmd.Flags().Uint32Var(&formatInfo.NumberFiles, "files", 0, "Maximum number of files")
	cmd.Flags().BoolVar(&formatInfo.DuplicateData, "duplicate-data", false, "Keep duplicate data")
}

func parseArchivePath() (backends.Path, error) {
	switch archivePathType {
	case "empty", "":
		return backends.EmptyPath(), nil
	case "binary":
		data, err := hex.DecodeString(archivePath)
		if err != nil {
			return backends.Path{}, fmt.Errorf("binary path must be hex: %w", err)
		}
		return backends.BinaryPath(data), nil
	case "char":
		return backends.CharPath(archivePath), nil
	case "wchar":
		return backends.WcharPath(archivePath), nil
	default:
		return backends.Path{}, fmt.Errorf("unknown path type %q", archivePathType)
	}
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseIDPair(highArg, lowArg string) (uint32, uint32, error) {
	high, err := parseUint32(highArg)
	if err != nil {
		return 0, 0, err
	}
	low, err := parseUint32(lowArg)
	if err != nil {
		return 0, 0, err
	}
	return high, low, nil
}

// withManager builds the runtime, runs fn and tears everything down
func withManager(fn func(ctx context.Context, manager *core.ArchiveManager) error) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(context.Background(), rt.manager)
}

func runFormat(cmd *cobra.Command, args []string) error {
	idCode, err := core.ParseArchiveIDCode(args[0])
	if err != nil {
		return err
	}
	path, err := parseArchivePath()
	if err != nil {
		return err
	}

	return withManager(func(ctx context.Context, manager *core.ArchiveManager) error {
		if err := manager.FormatArchive(ctx, idCode, formatInfo, path); err != nil {
			return err
		}
		color.Green("✓ %s formatted", idCode)
		return nil
	})
}

func runFormatInfo(cmd *cobra.Command, args []string) error {
	idCode, err := core.ParseArchiveIDCode(args[0])
	if err != nil {
		return err
	}
	path, err := parseArchivePath()
	if err != nil {
		return err
	}

	return withManager(func(ctx context.Context, manager *core.ArchiveManager) error {
		info, err := manager.GetArchiveFormatInfo(ctx, idCode, path)
		if err != nil {
			return err
		}
		fmt.Printf("Total Size: %d\n", info.TotalSize)
		fmt.Printf("Directories: %d\n", info.NumberDirectories)
		fmt.Printf("Files: %d\n", info.NumberFiles)
		fmt.Printf("Duplicate Data: %t\n", info.DuplicateData)
		return nil
	})
}

func runExtDataCreate(cmd *cobra.Command, args []string) error {
	media, err := archives.ParseMediaType(args[0])
	if err != nil {
		return err
	}
	high, low, err := parseIDPair(args[1], args[2])
	if err != nil {
		return err
	}
	var icon []byte
	if iconFile != "" {
		if icon, err = os.ReadFile(iconFile); err != nil {
			return fmt.Errorf("failed to read icon: %w", err)
		}
	}

	return withManager(func(ctx context.Context, manager *core.ArchiveManager) error {
		if err := manager.CreateExtSaveData(ctx, media, high, low, icon, formatInfo); err != nil {
			return err
		}
		color.Green("✓ Ext save data %08x%08x created on %s", high, low, media)
		return nil
	})
}

func runExtDataDelete(cmd *cobra.Command, args []string) error {
	media, err := archives.ParseMediaType(args[0])
	if err != nil {
		return err
	}
	high, low, err := parseIDPair(args[1], args[2])
	if err != nil {
		return err
	}

	return withManager(func(ctx context.Context, manager *core.ArchiveManager) error {
		if err := manager.DeleteExtSaveData(ctx, media, high, low); err != nil {
			return err
		}
		color.Green("✓ Ext save data %08x%08x deleted from %s", high, low, media)
		return nil
	})
}

func runSysDataCreate(cmd *cobra.Command, args []string) error {
	high, low, err := parseIDPair(args[0], args[1])
	if err != nil {
		return err
	}

	return withManager(func(ctx context.Context, manager *core.ArchiveManager) error {
		if err := manager.CreateSystemSaveData(ctx, high, low); err != nil {
			return err
		}
		color.Green("✓ System save data %08x%08x created", high, low)
		return nil
	})
}

func runSysDataDelete(cmd *cobra.Command, args []string) error {
	high, low, err := parseIDPair(args[0], args[1])
	if err != nil {
		return err
	}

	return withManager(func(ctx context.Context, manager *core.ArchiveManager) error {
		if err := manager.DeleteSystemSaveData(ctx, high, low); err != nil {
			return err
		}
		color.Green("✓ System save data %08x%08x deleted", high, low)
		return nil
	})
}

func runList(cmd *cobra.Command, args []string) error {
	idCode, err := core.ParseArchiveIDCode(args[0])
	if err != nil {
		return err
	}
	path, err := parseArchivePath()
	if err != nil {
		return err
	}
	dirPath := "/"
	if len(args) == 2 {
		dirPath = args[1]
	}

	return withManager(func(ctx context.Context, manager *core.ArchiveManager) error {
		handle, err := manager.OpenArchive(ctx, idCode, path)
		if err != nil {
			return err
		}
		defer manager.CloseArchive(ctx, handle)

		dir, err := manager.OpenDirectoryFromArchive(ctx, handle, backends.CharPath(dirPath))
		if err != nil {
			return err
		}
		defer dir.Close()

		dirColor := color.New(color.FgBlue, color.Bold)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()
		for {
			entries, err := dir.Read(64)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}
			for _, entry := range entries {
				if entry.IsDirectory {
					fmt.Fprintf(w, "%s\t<dir>\n", dirColor.Sprint(entry.Name+"/"))
					continue
				}
				fmt.Fprintf(w, "%s\t%d\n", entry.Name, entry.Size)
			}
		}
	})
}
