// Package remote manages virtual IR remotes and their learned buttons.
//
// A remote belongs to one bridge device and fixes the IR protocol and
// code width for every button it holds. Buttons are appended when a
// read command's acknowledgement arrives carrying the captured code;
// the append path enforces name uniqueness and code width so a remote
// can never hold a button its device cannot emit.
package remote
