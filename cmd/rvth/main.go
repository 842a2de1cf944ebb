// Command rvth is a command-line client for reading and modifying
// RVT-H Reader HDD images and standalone Wii/GameCube disc images:
// listing banks, extracting/importing disc images, deleting/
// undeleting bank slots, and verifying a Wii bank's hash tree.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/bodgit/rvth/disc"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/rvth"
	"github.com/bodgit/rvth/verify"
	"github.com/bodgit/rvth/wiicrypto/cert"
	"github.com/bodgit/rvth/wiicrypto/keystore"
	"github.com/bodgit/rvth/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var fs = afero.NewOsFs()

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func bankTypeName(t disc.BankType) string {
	switch t {
	case disc.BankTypeEmpty:
		return "Empty"
	case disc.BankTypeGCN:
		return "GameCube"
	case disc.BankTypeWiiSL:
		return "Wii (single-layer)"
	case disc.BankTypeWiiDL:
		return "Wii (dual-layer)"
	case disc.BankTypeWiiDLBank2:
		return "Wii (dual-layer, bank 2)"
	default:
		return "Unknown"
	}
}

// openKeystore opens a keystore.Store rooted at dir, or returns nil if
// dir is empty: most read-only inspection commands work without one,
// at reduced fidelity (no signature verification, no crypto-tier
// detection beyond the issuer name).
func openKeystore(dir string) *keystore.Store {
	if dir == "" {
		return nil
	}
	return keystore.Open(fs, dir)
}

func openImage(path string, writable bool, keysDir string) (*rvth.Image, error) {
	var (
		file *reffile.RefFile
		err  error
	)
	if writable {
		file, err = reffile.OpenWritable(path)
	} else {
		file, err = reffile.Open(path)
	}
	if err != nil {
		return nil, err
	}

	store := openKeystore(keysDir)
	var lookup cert.CertLookup
	if store != nil {
		lookup = store.Cert
	}

	img, err := rvth.Open(file, store, lookup)
	if err != nil {
		file.Close()
		return nil, err
	}
	return img, nil
}

func listBanks(path, keysDir string) error {
	img, err := openImage(path, false, keysDir)
	if err != nil {
		return err
	}
	defer img.Close()

	for _, b := range img.Banks {
		status := ""
		if b.IsDeleted {
			status = " (deleted)"
		}
		fmt.Printf("Bank %d: %s%s\n", b.Index+1, bankTypeName(b.Type), status)
		if b.Type == disc.BankTypeEmpty || b.Type == disc.BankTypeUnknown {
			continue
		}
		if id := b.Header.ID6(); id != "" {
			fmt.Printf("  Game ID: %s\n", id)
		}
		if b.HasTimestamp {
			fmt.Printf("  Timestamp: %s\n", b.Timestamp.Format(time.RFC3339))
		}
		if b.Crypto != nil {
			fmt.Printf("  Encryption: %s\n", b.Crypto.CryptoType)
		}
	}
	return nil
}

func showTable(path string) error {
	img, err := openImage(path, false, "")
	if err != nil {
		return err
	}
	defer img.Close()

	fmt.Printf("HDD image: %v\n", img.IsHDD)
	fmt.Printf("Bank count: %d\n", img.BankCount())
	for i, entry := range img.Table.Entries {
		fmt.Printf("%2d: type=%d lba_start=%#x lba_len=%#x\n", i+1, entry.Type, entry.LBAStart, entry.LBALen)
	}
	return nil
}

func progressBar(total uint32, description string) (*progressbar.ProgressBar, worker.ProgressFunc) {
	bar := progressbar.DefaultBytes(int64(total)*512, description)
	return bar, func(phase worker.Phase, processed, total uint32) error {
		_ = bar.Set64(int64(processed) * 512)
		return nil
	}
}

func extractBank(path string, index int, dest string, encrypted bool, keysDir string) error {
	img, err := openImage(path, false, keysDir)
	if err != nil {
		return err
	}
	defer img.Close()

	bar, progress := progressBar(img.Banks[index].Reader.LBALen(), "extracting")
	defer bar.Close()

	return img.Extract(index, dest, encrypted, img.Store, worker.New(), progress)
}

func importBank(path string, index int, src string, iosForce int, keysDir string) error {
	img, err := openImage(path, true, keysDir)
	if err != nil {
		return err
	}
	defer img.Close()

	bar := progressbar.Default(-1, "importing")
	defer bar.Close()
	progress := func(phase worker.Phase, processed, total uint32) error {
		if total > 0 {
			bar.ChangeMax(int(total))
		}
		return bar.Set(int(processed))
	}

	return img.Import(src, index, iosForce, worker.New(), progress)
}

func deleteBank(path string, index int) error {
	img, err := openImage(path, true, "")
	if err != nil {
		return err
	}
	defer img.Close()
	return img.DeleteBank(index)
}

func undeleteBank(path string, index int) error {
	img, err := openImage(path, true, "")
	if err != nil {
		return err
	}
	defer img.Close()
	return img.UndeleteBank(index)
}

func verifyBank(path string, index int, keysDir string) error {
	img, err := openImage(path, false, keysDir)
	if err != nil {
		return err
	}
	defer img.Close()

	b, err := img.Bank(index)
	if err != nil {
		return err
	}

	bar, progress := progressBar(b.Reader.LBALen(), "verifying")
	defer bar.Close()

	counts, err := verify.WiiPartitions(b.BankInfo, img.Store, worker.New(), progress, func(r verify.Report) {
		kind := "hash mismatch"
		if r.Kind == verify.ErrorTableCopy {
			kind = "table copy mismatch"
		}
		fmt.Printf("\n  partition %d, level %d, sector %d: %s\n", r.PartitionIndex, r.HashLevel, r.Sector, kind)
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nerrors: %d\n", counts.Total())
	return nil
}

func bankIndex(c *cli.Context, arg int) (int, error) {
	s := c.Args().Get(arg)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid bank number %q: %w", s, err)
	}
	return n - 1, nil
}

func main() {
	app := cli.NewApp()

	app.Name = "rvth"
	app.Usage = "RVT-H Reader disc image utility"
	app.Version = fmt.Sprintf("%s, commit %s, built at %s", version, commit, date)

	keysFlag := &cli.PathFlag{
		Name:    "keys",
		Aliases: []string{"k"},
		Usage:   "load common keys/certificates from `DIRECTORY`",
	}

	app.Commands = []*cli.Command{
		{
			Name:      "list-banks",
			Usage:     "List the banks of an RVT-H image",
			ArgsUsage: "FILE",
			Flags:     []cli.Flag{keysFlag},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				return listBanks(c.Args().First(), c.Path("keys"))
			},
		},
		{
			Name:      "show-table",
			Usage:     "Dump the raw NHCD bank table",
			ArgsUsage: "FILE",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				return showTable(c.Args().First())
			},
		},
		{
			Name:      "extract",
			Usage:     "Extract a bank to a standalone GCM file",
			ArgsUsage: "FILE BANK DEST",
			Flags: []cli.Flag{
				keysFlag,
				&cli.BoolFlag{
					Name:  "encrypt",
					Usage: "convert an unencrypted Wii partition to standard encrypted sectors",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 3 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				index, err := bankIndex(c, 1)
				if err != nil {
					return err
				}
				return extractBank(c.Args().First(), index, c.Args().Get(2), c.Bool("encrypt"), c.Path("keys"))
			},
		},
		{
			Name:      "import",
			Usage:     "Import a standalone disc image into a bank",
			ArgsUsage: "FILE BANK SOURCE",
			Flags: []cli.Flag{
				keysFlag,
				&cli.IntFlag{
					Name:  "ios",
					Usage: "force this IOS version when recrypting (0 to leave as-is)",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 3 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				index, err := bankIndex(c, 1)
				if err != nil {
					return err
				}
				return importBank(c.Args().First(), index, c.Args().Get(2), c.Int("ios"), c.Path("keys"))
			},
		},
		{
			Name:      "delete",
			Usage:     "Mark a bank as deleted",
			ArgsUsage: "FILE BANK",
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				index, err := bankIndex(c, 1)
				if err != nil {
					return err
				}
				return deleteBank(c.Args().First(), index)
			},
		},
		{
			Name:      "undelete",
			Usage:     "Restore a previously deleted bank",
			ArgsUsage: "FILE BANK",
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				index, err := bankIndex(c, 1)
				if err != nil {
					return err
				}
				return undeleteBank(c.Args().First(), index)
			},
		},
		{
			Name:      "verify",
			Usage:     "Verify a Wii bank's hash tree",
			ArgsUsage: "FILE BANK",
			Flags:     []cli.Flag{keysFlag},
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				index, err := bankIndex(c, 1)
				if err != nil {
					return err
				}
				return verifyBank(c.Args().First(), index, c.Path("keys"))
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
