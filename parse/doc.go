package parse

// Parser for preprocessed C token streams.
//
// Top-down recursive descent with one-token lookahead, modulo the
// classical typedef-name disambiguation: identifier tokens consult the
// current scope chain, acting as type specifiers when bound as
// typedefs and as expressions when bound as variables.
//
// Glossary:
//
// Declarator
// ----------
//
// The part of a declaration that specifies the name being introduced.
//
// e.g.
// unsigned int a, *b, **c, *const*d;
//              ^  ^^  ^^^  ^^^^^^^^
//
// Direct Declarator
// -----------------
//
// A declarator missing the pointer prefix.
//
// e.g.
// unsigned int a[32], b[];
//              ^^^^^  ^^^
//
// Abstract Declarator
// -------------------
//
// A declarator missing an identifier, as in casts and sizeof.
