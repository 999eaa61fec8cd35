package languages

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrLanguageNotFound = errors.New("language not found")
)

const entrypointCommand = `ENTRYPOINT ["/bin/sh", "-c", "/bin/sh entrypoint-$TEST_CASE_ID.sh"]`

type Registry struct {
	mu        sync.RWMutex
	languages map[string]Language
}

func NewRegistry() *Registry {
	r := &Registry{
		languages: make(map[string]Language),
	}
	r.registerDefaults()
	return r
}

func (r *Registry) Register(lang Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages[strings.ToUpper(lang.ID)] = lang
}

// Get looks a language up by identifier, ignoring case.
func (r *Registry) Get(id string) (Language, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.languages[strings.ToUpper(id)]
	if !ok {
		return Language{}, fmt.Errorf("%w: %s", ErrLanguageNotFound, id)
	}
	return lang, nil
}

// List returns the registered languages sorted by identifier.
func (r *Registry) List() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]Language, 0, len(r.languages))
	for _, l := range r.languages {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].ID < langs[j].ID })
	return langs
}

func fixed(command string) func(string, int) string {
	return func(string, int) string { return command }
}

func (r *Registry) registerDefaults() {
	r.Register(Language{
		ID:                "C",
		Name:              "C",
		Folder:            "c",
		Extension:         ".c",
		DefaultSourceFile: "main.c",
		Dockerfile: `FROM gcc:13
WORKDIR /app
COPY . .
RUN gcc -O2 -std=c11 -o exec {{.SourceFile}} -lm
` + entrypointCommand + "\n",
		Command:           fixed("./exec"),
		LimitAddressSpace: true,
	})

	r.Register(Language{
		ID:                "CPP",
		Name:              "C++",
		Folder:            "cpp",
		Extension:         ".cpp",
		DefaultSourceFile: "main.cpp",
		Dockerfile: `FROM gcc:13
WORKDIR /app
COPY . .
RUN g++ -O2 -std=c++17 -o exec {{.SourceFile}}
` + entrypointCommand + "\n",
		Command:           fixed("./exec"),
		LimitAddressSpace: true,
	})

	r.Register(Language{
		ID:                "GO",
		Name:              "Go",
		Folder:            "go",
		Extension:         ".go",
		DefaultSourceFile: "main.go",
		Dockerfile: `FROM golang:1.22
WORKDIR /app
COPY . .
RUN go build -o exec {{.SourceFile}}
` + entrypointCommand + "\n",
		Command:           fixed("./exec"),
		LimitAddressSpace: true,
	})

	r.Register(Language{
		ID:                "RUST",
		Name:              "Rust",
		Folder:            "rs",
		Extension:         ".rs",
		DefaultSourceFile: "main.rs",
		Dockerfile: `FROM rust:1.79-slim
WORKDIR /app
COPY . .
RUN rustc -O -o exec {{.SourceFile}}
` + entrypointCommand + "\n",
		Command:           fixed("./exec"),
		LimitAddressSpace: true,
	})

	r.Register(Language{
		ID:                "HASKELL",
		Name:              "Haskell",
		Folder:            "haskell",
		Extension:         ".hs",
		DefaultSourceFile: "main.hs",
		Dockerfile: `FROM haskell:9.8-slim
WORKDIR /app
COPY . .
RUN ghc -O2 -o exec {{.SourceFile}}
` + entrypointCommand + "\n",
		Command: fixed("./exec"),
	})

	r.Register(Language{
		ID:                "JAVA",
		Name:              "Java",
		Folder:            "java",
		Extension:         ".java",
		DefaultSourceFile: "Main.java",
		Dockerfile: `FROM eclipse-temurin:21-jdk
WORKDIR /app
COPY . .
RUN javac {{.SourceFile}}
` + entrypointCommand + "\n",
		Command: func(sourceFile string, memoryLimit int) string {
			return fmt.Sprintf("java -Xmx%dm -cp . %s", memoryLimit, className(sourceFile))
		},
	})

	r.Register(Language{
		ID:                "KOTLIN",
		Name:              "Kotlin",
		Folder:            "kotlin",
		Extension:         ".kt",
		DefaultSourceFile: "main.kt",
		Dockerfile: `FROM zenika/kotlin:1.4-jdk12
WORKDIR /app
COPY . .
RUN kotlinc {{.SourceFile}} -include-runtime -d exec.jar
` + entrypointCommand + "\n",
		Command: func(_ string, memoryLimit int) string {
			return fmt.Sprintf("java -Xmx%dm -jar exec.jar", memoryLimit)
		},
	})

	r.Register(Language{
		ID:                "SCALA",
		Name:              "Scala",
		Folder:            "scala",
		Extension:         ".scala",
		DefaultSourceFile: "Main.scala",
		Dockerfile: `FROM hseeberger/scala-sbt:17.0.2_1.6.2_3.1.1
WORKDIR /app
COPY . .
RUN scalac {{.SourceFile}}
` + entrypointCommand + "\n",
		Command: func(sourceFile string, memoryLimit int) string {
			return fmt.Sprintf("scala -J-Xmx%dm -classpath . %s", memoryLimit, className(sourceFile))
		},
	})

	r.Register(Language{
		ID:                "CS",
		Name:              "C#",
		Folder:            "cs",
		Extension:         ".cs",
		DefaultSourceFile: "main.cs",
		Dockerfile: `FROM mono:6.12
WORKDIR /app
COPY . .
RUN mcs -out:exec.exe {{.SourceFile}}
` + entrypointCommand + "\n",
		Command: fixed("mono exec.exe"),
	})

	r.Register(Language{
		ID:                "PYTHON",
		Name:              "Python",
		Folder:            "python",
		Extension:         ".py",
		DefaultSourceFile: "main.py",
		Dockerfile: `FROM python:3.11-slim
WORKDIR /app
COPY . .
RUN python3 -m py_compile {{.SourceFile}}
` + entrypointCommand + "\n",
		Command: func(sourceFile string, _ int) string {
			return "python3 " + sourceFile
		},
		LimitAddressSpace: true,
	})

	r.Register(Language{
		ID:                "RUBY",
		Name:              "Ruby",
		Folder:            "ruby",
		Extension:         ".rb",
		DefaultSourceFile: "main.rb",
		Dockerfile: `FROM ruby:3.3-slim
WORKDIR /app
COPY . .
RUN ruby -c {{.SourceFile}}
` + entrypointCommand + "\n",
		Command: func(sourceFile string, _ int) string {
			return "ruby " + sourceFile
		},
		LimitAddressSpace: true,
	})

	r.Register(Language{
		ID:                "JAVASCRIPT",
		Name:              "JavaScript",
		Folder:            "javascript",
		Extension:         ".js",
		DefaultSourceFile: "solution.js",
		Dockerfile: `FROM node:20-slim
WORKDIR /app
COPY . .
RUN node --check {{.SourceFile}}
` + entrypointCommand + "\n",
		Command: func(sourceFile string, memoryLimit int) string {
			return fmt.Sprintf("node --max-old-space-size=%d %s", memoryLimit, sourceFile)
		},
	})

	r.Register(Language{
		ID:                "TYPESCRIPT",
		Name:              "TypeScript",
		Folder:            "typescript",
		Extension:         ".ts",
		DefaultSourceFile: "solution.ts",
		Dockerfile: `FROM node:20-slim
WORKDIR /app
RUN npm install -g typescript@5
COPY . .
RUN tsc -p tsconfig.json
` + entrypointCommand + "\n",
		Command: func(sourceFile string, memoryLimit int) string {
			return fmt.Sprintf("node --max-old-space-size=%d dist/%s.js", memoryLimit, className(sourceFile))
		},
		ExtraFiles: map[string]string{
			"tsconfig.json": `{
  "compilerOptions": {
    "target": "ES2022",
    "module": "commonjs",
    "outDir": "dist",
    "strict": false,
    "types": []
  },
  "include": ["*.ts"]
}
`,
		},
	})
}
