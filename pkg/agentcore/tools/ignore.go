package tools

import (
	"bufio"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"
)

// loadIgnoreRules reads .gitignore and .agentrt/.ignore under rootDir and
// compiles them into one matcher, adapted from the teacher's
// pkg/filediscovery/ignore.go (GetIgnoreRules).
func loadIgnoreRules(rootDir string) *ignore.GitIgnore {
	var rules []string
	for _, name := range []string{".gitignore", filepath.Join(".agentrt", ".ignore")} {
		if lines, err := readIgnoreFile(filepath.Join(rootDir, name)); err == nil {
			rules = append(rules, lines...)
		}
	}
	if len(rules) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(rules...)
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
