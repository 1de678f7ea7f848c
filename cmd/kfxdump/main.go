// Copyright 2024 The kfx authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Command kfxdump inspects KFX containers.
//
// Usage:
//
//	kfxdump [-json] [-q] file.kfx ...
//
// For each input file, kfxdump parses the container and prints
// a summary of its info block, symbol table, and fragments.
// With -json the summary is emitted as a JSON document instead.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ebookfmt/kfx"
	"github.com/ebookfmt/kfx/ion"
	"github.com/goccy/go-json"
)

var (
	asJSON = flag.Bool("json", false, "emit the summary as JSON")
	quiet  = flag.Bool("q", false, "suppress diagnostics")
)

type fragmentSummary struct {
	FID       string `json:"fid"`
	FType     string `json:"ftype"`
	IonType   string `json:"ion_type,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	RawBytes  int    `json:"raw_bytes,omitempty"`
}

type containerSummary struct {
	File         string            `json:"file"`
	Version      int               `json:"version"`
	ContainerID  string            `json:"container_id,omitempty"`
	Class        string            `json:"class"`
	LocalSymbols []string          `json:"local_symbols,omitempty"`
	Generator    []kfx.GeneratorKV `json:"generator_info,omitempty"`
	Fragments    []fragmentSummary `json:"fragments"`
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("kfxdump: ")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: kfxdump [-json] [-q] file.kfx ...")
		os.Exit(2)
	}
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	for _, arg := range flag.Args() {
		if err := dump(out, arg); err != nil {
			out.Flush()
			log.Fatalf("%s: %s", arg, err)
		}
	}
}

func dump(out *bufio.Writer, path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	sink := kfx.DiscardDiags
	if !*quiet {
		sink = kfx.LogDiags(log.Default())
	}
	c, err := kfx.Parse(buf, sink)
	if err != nil {
		return err
	}
	sum := summarize(path, c)
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(&sum)
	}
	printSummary(out, c, &sum)
	return nil
}

func summarize(path string, c *kfx.Container) containerSummary {
	sum := containerSummary{
		File:         path,
		Version:      c.Version,
		ContainerID:  c.ContainerID(),
		Class:        c.Class().String(),
		LocalSymbols: c.Symbols.Locals(),
		Generator:    c.GeneratorInfo,
	}
	for i := range c.Fragments {
		f := &c.Fragments[i]
		fs := fragmentSummary{
			FID:   symname(&c.Symbols, f.FID),
			FType: symname(&c.Symbols, f.FType),
		}
		if f.Raw != nil {
			fs.RawBytes = len(f.Raw)
			fs.MediaType = kfx.SniffMediaType(f.Raw)
		} else {
			fs.IonType = f.Value.Type().String()
		}
		sum.Fragments = append(sum.Fragments, fs)
	}
	return sum
}

func symname(st *ion.Symtab, s ion.Symbol) string {
	if name, ok := st.NameForID(s); ok {
		return name
	}
	return fmt.Sprintf("$%d", s)
}

func printSummary(out *bufio.Writer, c *kfx.Container, sum *containerSummary) {
	fmt.Fprintf(out, "%s: KFX version %d, %s container\n", sum.File, sum.Version, sum.Class)
	if sum.ContainerID != "" {
		fmt.Fprintf(out, "  id: %s\n", sum.ContainerID)
	}
	if n := c.Symbols.LocalCount(); n > 0 {
		fmt.Fprintf(out, "  local symbols: %d\n", n)
	}
	for _, kv := range sum.Generator {
		fmt.Fprintf(out, "  %s: %s\n", kv.Key, kv.Value)
	}
	fmt.Fprintf(out, "  fragments: %d\n", len(sum.Fragments))
	for _, f := range sum.Fragments {
		switch {
		case f.MediaType != "":
			fmt.Fprintf(out, "    %s %s (%s, %d bytes)\n", f.FID, f.FType, f.MediaType, f.RawBytes)
		case f.RawBytes > 0:
			fmt.Fprintf(out, "    %s %s (%d raw bytes)\n", f.FID, f.FType, f.RawBytes)
		default:
			fmt.Fprintf(out, "    %s %s (%s)\n", f.FID, f.FType, f.IonType)
		}
	}
}
