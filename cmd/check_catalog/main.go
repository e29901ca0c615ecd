package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"wessbooks/pkg/catalog"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <books.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	if err := check(os.Args[1], os.Stdout); err != nil {
		exitErr(err)
	}
}

func check(path string, out io.Writer) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	c, err := catalog.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	items := c.Items()
	var problems []string
	for _, item := range items {
		if strings.TrimSpace(item.Author) == "" {
			problems = append(problems, fmt.Sprintf("%q has no author", item.Title))
		}
		ext := strings.ToLower(filepath.Ext(item.Image))
		if !imageExtensions[ext] {
			problems = append(problems, fmt.Sprintf("%q image %q is not a jpg, png or webp file", item.Title, item.Image))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%s: %s", path, strings.Join(problems, "; "))
	}

	minPrice, maxPrice := items[0].Price, items[0].Price
	for _, item := range items[1:] {
		minPrice = min(minPrice, item.Price)
		maxPrice = max(maxPrice, item.Price)
	}
	fmt.Fprintf(out, "%d books, prices %d-%d\n", len(items), minPrice, maxPrice)
	for _, item := range items {
		fmt.Fprintf(out, "  %d\t%s\t%s\t%d\n", item.ID, item.Title, item.Author, item.Price)
	}
	fmt.Fprintln(out, "Catalog check passed.")
	return nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
