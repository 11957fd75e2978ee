// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
)

type lineCount struct {
	prod, test int
}

// Stats prints Go lines of code per package, production and tests apart.
func Stats() error {
	counts := map[string]*lineCount{}

	err := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			switch {
			case path == "vendor", path == ".git", path == binaryDir, path == demoDir,
				path == "magefiles", strings.HasPrefix(filepath.Base(path), "_"):
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		n, countErr := countLines(path)
		if countErr != nil {
			return nil
		}
		pkg := filepath.Dir(path)
		c := counts[pkg]
		if c == nil {
			c = &lineCount{}
			counts[pkg] = c
		}
		if strings.HasSuffix(path, "_test.go") {
			c.test += n
		} else {
			c.prod += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	pkgs := make([]string, 0, len(counts))
	for pkg := range counts {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PACKAGE\tPROD\tTEST\t")
	var total lineCount
	for _, pkg := range pkgs {
		c := counts[pkg]
		fmt.Fprintf(w, "%s\t%d\t%d\t\n", pkg, c.prod, c.test)
		total.prod += c.prod
		total.test += c.test
	}
	fmt.Fprintf(w, "total\t%d\t%d\t\n", total.prod, total.test)
	return w.Flush()
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
