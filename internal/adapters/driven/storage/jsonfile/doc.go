// Package jsonfile persists sources and sync history as JSON documents.
//
// Every mutation rewrites the whole document through a temporary file and a
// rename, so readers never observe a half-written file. The source file can
// be watched for edits made by other processes.
package jsonfile
