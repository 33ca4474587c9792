package main

import (
	"github.com/abiiranathan/goflag"
)

// options holds every flag value; subcommands read the ones they define.
type options struct {
	ConfigPath string
	EnvFile    string

	File       string
	Title      string
	DocumentID string
	Lang       string

	Addr string
}

var defaultOptions = options{
	EnvFile: ".env",
	Lang:    "deu",
	Addr:    ":8080",
}

func defineFlags(opts *options, cmds commands) *goflag.Context {
	documentFlag := goflag.Flag{
		FlagType:  goflag.FlagString,
		Name:      "document",
		ShortName: "d",
		Value:     &opts.DocumentID,
		Usage:     "The id of the document to OCR",
		Required:  true,
	}
	langFlag := goflag.Flag{
		FlagType:  goflag.FlagString,
		Name:      "lang",
		ShortName: "l",
		Value:     &opts.Lang,
		Usage:     "OCR language code, e.g. deu or eng",
		Required:  false,
	}

	ctx := goflag.NewContext()

	ctx.AddFlag(goflag.FlagString, "config", "c", &opts.ConfigPath, "Path to a YAML config file", false)
	ctx.AddFlag(goflag.FlagString, "env", "e", &opts.EnvFile, "Path to a .env file loaded before the environment is read", false)

	ctx.AddSubCommand("import", "Create a document from a PDF or image file", cmds.importFile).
		AddFlag(goflag.FlagFilePath, "file", "f", &opts.File, "The file to import", true).
		AddFlag(goflag.FlagString, "title", "t", &opts.Title, "Document title, defaults to the file name", false).
		AddFlagPtr(&langFlag)

	ctx.AddSubCommand("ocr", "Run OCR on the latest version of a document and wait for it", cmds.runOCR).
		AddFlagPtr(&documentFlag).
		AddFlagPtr(&langFlag)

	ctx.AddSubCommand("submit", "Start the OCR workflow in Cloud Workflows", cmds.submit).
		AddFlagPtr(&documentFlag).
		AddFlagPtr(&langFlag)

	ctx.AddSubCommand("serve", "Serve the HTTP trigger and run OCR jobs in-process", cmds.serve).
		AddFlag(goflag.FlagString, "addr", "a", &opts.Addr, "The address to listen on", false)

	ctx.AddSubCommand("sweep", "Delete artifacts left behind by failed runs", cmds.sweep)

	return ctx
}
