package main

import (
	"fmt"
	"os"

	"github.com/KarpelesLab/bigfile"
)

const usage = `bigfile - BigFile container CLI tool

Usage:
  bigfile ls <path>                  List blocks in a BigFile root
  bigfile info <path> <block>        Display dtype, size and Nfile for one block
  bigfile attrs <path> <block>       List attribute keys on one block
  bigfile cat <path> <block>         Dump raw record bytes of one block to stdout
  bigfile help                       Show this help message

Examples:
  bigfile ls data.bf                 List all blocks under data.bf
  bigfile info data.bf temperature   Show metadata about the "temperature" block
  bigfile cat data.bf temperature    Write raw bytes of the block to stdout
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "ls":
		if len(os.Args) < 3 {
			fmt.Println("Error: Missing BigFile path")
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := listBlocks(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "info":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing BigFile path or block name")
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := showInfo(os.Args[2], os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "attrs":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing BigFile path or block name")
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := listAttrs(os.Args[2], os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "cat":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing BigFile path or block name")
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := catBlock(os.Args[2], os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "help":
		fmt.Println(usage)

	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func listBlocks(path string) error {
	f, err := bigfile.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	names, err := f.ListBlocks()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func showInfo(path, name string) error {
	f, err := bigfile.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := f.Open(name)
	if err != nil {
		return err
	}
	defer b.Close()

	fmt.Printf("dtype: %s\n", b.Dtype())
	fmt.Printf("size: %d\n", b.Size())
	fmt.Printf("nfile: %d\n", b.Nfile())
	return nil
}

func listAttrs(path, name string) error {
	f, err := bigfile.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := f.Open(name)
	if err != nil {
		return err
	}
	defer b.Close()

	for _, k := range b.Attrs().List() {
		fmt.Println(k)
	}
	return nil
}

func catBlock(path, name string) error {
	f, err := bigfile.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := f.Open(name)
	if err != nil {
		return err
	}
	defer b.Close()

	buf, err := b.Read(0, b.Size())
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf.B)
	return err
}
